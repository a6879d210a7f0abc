package main

import (
	"fmt"
	"os"
	"time"

	"github.com/LeeDigitalWorks/icbucket/cmd"

	"github.com/getsentry/sentry-go"
)

func main() {
	// Without SENTRY_DSN the client is a no-op.
	err := sentry.Init(sentry.ClientOptions{
		SampleRate:       0.1,
		EnableTracing:    true,
		TracesSampleRate: 0.1,
		Release:          "icbucket@" + cmd.Version,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "sentry.Init: %v", err)
	}
	defer sentry.Flush(2 * time.Second)

	cmd.Execute()
}
