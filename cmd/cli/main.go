package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	pb "stock-price-alerts/api/stockalerts"
)

const requestTimeout = 5 * time.Second

func main() {
	serverAddr := flag.String("addr", "127.0.0.1:50051", "gRPC server address")
	flag.Parse()

	conn, err := grpc.NewClient(*serverAddr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		pb.DialOption(),
	)
	if err != nil {
		log.Fatalf("Failed to create client for %s: %v", *serverAddr, err)
	}
	defer conn.Close()

	marketData := pb.NewMarketDataClient(conn)
	alertService := pb.NewAlertServiceClient(conn)

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	if _, err := marketData.GetWatchlist(ctx, &pb.GetWatchlistRequest{}); err != nil {
		cancel()
		log.Fatalf("Failed to reach server at %s: %v\nMake sure the server is running", *serverAddr, err)
	}
	cancel()

	fmt.Println("Stock Price Alert CLI")
	fmt.Println("Connected to server at", *serverAddr)
	fmt.Println()

	scanner := bufio.NewScanner(os.Stdin)
	printHelp()

	for {
		fmt.Print("\nEnter command: ")
		if !scanner.Scan() {
			break
		}

		parts := strings.Fields(strings.TrimSpace(scanner.Text()))
		if len(parts) == 0 {
			continue
		}

		switch parts[0] {
		case "watch":
			if len(parts) < 2 {
				fmt.Println("Usage: watch <symbols> (e.g., watch AAPL,MSFT)")
				continue
			}
			watchQuotes(marketData, strings.Split(parts[1], ","))

		case "create":
			createAlert(alertService, scanner)

		case "list":
			symbol := ""
			if len(parts) > 1 {
				symbol = parts[1]
			}
			listAlerts(alertService, symbol)

		case "delete", "rearm", "disarm":
			if len(parts) < 2 {
				fmt.Printf("Usage: %s <id>\n", parts[0])
				continue
			}
			changeAlert(alertService, parts[0], parts[1])

		case "watch-alerts":
			watchAlerts(alertService)

		case "watchlist":
			manageWatchlist(marketData, parts[1:])

		case "help":
			printHelp()

		case "quit", "exit":
			fmt.Println("Goodbye!")
			return

		default:
			fmt.Printf("Unknown command: %s\n", parts[0])
		}
	}
}

func printHelp() {
	fmt.Println("Available commands:")
	fmt.Println("  watch <symbols>            - Stream live quotes (e.g., watch AAPL,MSFT)")
	fmt.Println("  create                     - Create a new price or change alert")
	fmt.Println("  list [symbol]              - List alerts")
	fmt.Println("  delete <id>                - Delete an alert")
	fmt.Println("  rearm <id> / disarm <id>   - Arm or disarm an alert")
	fmt.Println("  watch-alerts               - Stream fired alerts")
	fmt.Println("  watchlist [add|rm <sym>]   - Show or edit the watchlist")
	fmt.Println("  help                       - Show this help")
	fmt.Println("  quit                       - Exit the application")
}

// streamContext is cancelled by Ctrl+C so a stream can be left without
// quitting the CLI.
func streamContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

func watchQuotes(client pb.MarketDataClient, symbols []string) {
	fmt.Printf("Watching quotes for: %v (Press Ctrl+C to stop)\n", symbols)

	ctx, cancel := streamContext()
	defer cancel()

	stream, err := client.SubscribeQuotes(ctx, &pb.SubscribeQuotesRequest{Symbols: symbols})
	if err != nil {
		log.Printf("Error subscribing to quotes: %v", err)
		return
	}

	for {
		quote, err := stream.Recv()
		if err != nil {
			if ctx.Err() == nil {
				log.Printf("Error receiving quote: %v", err)
			}
			return
		}

		timestamp := quote.Timestamp.AsTime().Local().Format("15:04:05")
		fmt.Printf("[%s] %s: $%s\n", timestamp, quote.Symbol, quote.Price)
	}
}

func createAlert(client pb.AlertServiceClient, scanner *bufio.Scanner) {
	fmt.Println("Creating a new alert")

	fmt.Print("Enter symbol (e.g., AAPL): ")
	if !scanner.Scan() {
		return
	}
	symbol := strings.TrimSpace(scanner.Text())

	fmt.Print("Metric (price/change, default price): ")
	if !scanner.Scan() {
		return
	}
	metric := strings.TrimSpace(scanner.Text())

	fmt.Print("Direction (above/below): ")
	if !scanner.Scan() {
		return
	}
	direction := strings.TrimSpace(scanner.Text())

	fmt.Print("Enter threshold (price, or percent for change): ")
	if !scanner.Scan() {
		return
	}
	threshold := strings.TrimSpace(scanner.Text())
	if _, err := decimal.NewFromString(threshold); err != nil {
		fmt.Printf("Invalid threshold: %v\n", err)
		return
	}

	fmt.Print("Enter note (optional): ")
	if !scanner.Scan() {
		return
	}
	note := strings.TrimSpace(scanner.Text())

	fmt.Print("Email recipient (optional): ")
	if !scanner.Scan() {
		return
	}
	email := strings.TrimSpace(scanner.Text())

	fmt.Print("Telegram chat ID (optional): ")
	if !scanner.Scan() {
		return
	}
	chatID := strings.TrimSpace(scanner.Text())

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	resp, err := client.CreateAlert(ctx, &pb.CreateAlertRequest{
		Symbol:         symbol,
		Metric:         metric,
		Direction:      direction,
		Threshold:      threshold,
		Note:           note,
		Email:          email,
		TelegramChatId: chatID,
	})
	if err != nil {
		log.Printf("Error creating alert: %v", err)
		return
	}

	fmt.Println("Alert created successfully!")
	printAlert(resp.Alert)
}

func listAlerts(client pb.AlertServiceClient, symbol string) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	resp, err := client.ListAlerts(ctx, &pb.ListAlertsRequest{Symbol: symbol})
	if err != nil {
		log.Printf("Error listing alerts: %v", err)
		return
	}

	if len(resp.Alerts) == 0 {
		fmt.Println("No alerts found")
		return
	}

	fmt.Printf("Found %d alert(s):\n\n", len(resp.Alerts))
	for i, alert := range resp.Alerts {
		fmt.Printf("%d.\n", i+1)
		printAlert(alert)
		fmt.Println()
	}
}

func printAlert(alert *pb.Alert) {
	state := "armed"
	switch {
	case alert.Paused:
		state = "disarmed"
	case !alert.Armed:
		state = "fired"
	}
	fmt.Printf("   ID: %s\n", alert.Id)
	fmt.Printf("   Rule: %s %s (%s)\n", alert.Symbol, describeRule(alert.Metric, alert.Direction, alert.Threshold), state)
	if alert.Note != "" {
		fmt.Printf("   Note: %s\n", alert.Note)
	}
	if alert.LastFired != nil {
		fmt.Printf("   Last fired: %s\n", alert.LastFired.AsTime().Local().Format("2006-01-02 15:04:05"))
	}
}

func describeRule(metric, direction, threshold string) string {
	if metric == "change_percent" {
		return fmt.Sprintf("change %s %s%%", direction, threshold)
	}
	return fmt.Sprintf("%s $%s", direction, threshold)
}

func changeAlert(client pb.AlertServiceClient, action, id string) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	req := &pb.AlertIDRequest{Id: id}
	var err error
	switch action {
	case "delete":
		_, err = client.DeleteAlert(ctx, req)
	case "rearm":
		_, err = client.RearmAlert(ctx, req)
	case "disarm":
		_, err = client.DisarmAlert(ctx, req)
	}
	if err != nil {
		log.Printf("Error on %s %s: %v", action, id, err)
		return
	}
	fmt.Printf("Alert %s: %s done\n", id, action)
}

func watchAlerts(client pb.AlertServiceClient) {
	fmt.Println("Watching for fired alerts (Press Ctrl+C to stop)")

	ctx, cancel := streamContext()
	defer cancel()

	stream, err := client.SubscribeAlerts(ctx, &pb.SubscribeAlertsRequest{})
	if err != nil {
		log.Printf("Error subscribing to alerts: %v", err)
		return
	}

	for {
		event, err := stream.Recv()
		if err != nil {
			if ctx.Err() == nil {
				log.Printf("Error receiving alert: %v", err)
			}
			return
		}

		timestamp := event.Timestamp.AsTime().Local().Format("15:04:05")
		fmt.Printf("\nALERT FIRED [%s]\n", timestamp)
		fmt.Printf("Rule: %s %s\n", event.Symbol, describeRule(event.Metric, event.Direction, event.Threshold))
		fmt.Printf("Price: $%s\n", event.Price)
		if event.Metric == "change_percent" {
			fmt.Printf("Change: %s%%\n", event.Value)
		}
		if event.Note != "" {
			fmt.Printf("Note: %s\n", event.Note)
		}
		fmt.Println(strings.Repeat("-", 40))
	}
}

func manageWatchlist(client pb.MarketDataClient, args []string) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	var (
		resp *pb.WatchlistResponse
		err  error
	)
	switch {
	case len(args) == 0:
		resp, err = client.GetWatchlist(ctx, &pb.GetWatchlistRequest{})
	case len(args) == 2 && args[0] == "add":
		resp, err = client.AddToWatchlist(ctx, &pb.WatchlistRequest{Symbol: args[1]})
	case len(args) == 2 && args[0] == "rm":
		resp, err = client.RemoveFromWatchlist(ctx, &pb.WatchlistRequest{Symbol: args[1]})
	default:
		fmt.Println("Usage: watchlist [add <symbol> | rm <symbol>]")
		return
	}
	if err != nil {
		log.Printf("Watchlist error: %v", err)
		return
	}
	fmt.Printf("Watchlist: %s\n", strings.Join(resp.Symbols, ", "))
}
