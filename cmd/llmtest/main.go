// Command llmtest runs the diagnostic conversation engine against the configured
// model provider from a terminal. Each line on stdin is one patient message.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/joho/godotenv"

	"github.com/valooran/patient-intake-system/cmd/mainconfig"
	"github.com/valooran/patient-intake-system/internal/app/bootstrap"
	"github.com/valooran/patient-intake-system/internal/auth"
	appconfig "github.com/valooran/patient-intake-system/internal/config"
	"github.com/valooran/patient-intake-system/internal/conversation"
	httpmiddleware "github.com/valooran/patient-intake-system/internal/http/middleware"
	"github.com/valooran/patient-intake-system/pkg/logging"
)

func main() {
	mintToken := flag.Bool("mint-token", false, "print a signed dev token for -user/-role and exit")
	userID := flag.String("user", "console-patient", "user id for the session or token")
	role := flag.String("role", auth.RoleUser, "role claim for -mint-token (user or admin)")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime for -mint-token")
	flag.Parse()

	_ = godotenv.Load()
	cfg := appconfig.Load()

	if *mintToken {
		token, err := httpmiddleware.MintToken(cfg.JWTSecret, auth.Identity{UserID: *userID, Role: *role}, *ttl)
		if err != nil {
			fmt.Fprintf(os.Stderr, "mint token: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(token)
		return
	}

	logger := logging.New(cfg.LogLevel)
	ctx := context.Background()

	var awsCfg *aws.Config
	if cfg.LLMProvider == bootstrap.ProviderBedrock {
		loaded, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "load aws config: %v\n", err)
			os.Exit(1)
		}
		awsCfg = &loaded
	}

	llm, err := bootstrap.BuildLLM(ctx, cfg, awsCfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "build llm: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = llm.Close() }()

	engine := conversation.NewEngine(llm.Client, conversation.NewMemorySessionStore(), logger,
		conversation.WithProvider(llm.Provider),
		conversation.WithModel(llm.Model),
		conversation.WithMaxTokens(int32(cfg.LLMMaxTokens)),
		conversation.WithTemperature(float32(cfg.LLMTemperature)),
		conversation.WithTimeout(cfg.LLMTimeout),
	)

	fmt.Fprintf(os.Stderr, "provider=%s model=%s user=%s (ctrl-d to quit)\n", llm.Provider, llm.Model, *userID)
	if err := runConsole(ctx, engine, *userID, os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "console: %v\n", err)
		os.Exit(1)
	}
}

// runConsole feeds each non-blank input line to the engine and writes one JSON
// result per line. It stops after the first conclusion or at end of input.
func runConsole(ctx context.Context, engine conversation.TurnHandler, userID string, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	enc := json.NewEncoder(out)
	for scanner.Scan() {
		message := strings.TrimSpace(scanner.Text())
		if message == "" {
			continue
		}
		result := engine.HandleTurn(ctx, userID, message)
		if err := enc.Encode(result); err != nil {
			return err
		}
		if result.IsConclusion {
			return nil
		}
	}
	return scanner.Err()
}
