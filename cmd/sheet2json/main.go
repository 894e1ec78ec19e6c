// Command sheet2json prints spreadsheet tables as JSON.
//
//	sheet2json tables
//	sheet2json get Items --sort
//	sheet2json batch Items Owners --pretty
//	sheet2json --xlsx book.xlsx get Items
//	sheet2json auth url
//	sheet2json auth exchange CODE
//
// Configuration comes from the same environment variables as the server
// (a .env file is read if present); flags override them.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/sheetjson/internal/core"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{stdout: os.Stdout, stderr: os.Stderr, lookup: os.LookupEnv}
	if err := newRootCmd(a).ExecuteContext(ctx); err != nil {
		if core.IsUserFacing(err) {
			msg := core.MapError(err)
			fmt.Fprintf(os.Stderr, "%s (%s): %v\n", msg.Message, msg.Code, err)
		} else {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(1)
	}
}
