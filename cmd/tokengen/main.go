package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/jwtauth/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/tendant/pluser/pkg/client"
)

func main() {
	// Parse command line flags
	secret := flag.String("secret", "very-secure-jwt-secret", "Secret key for signing the token (JWT_SECRET of the server)")
	sender := flag.String("sender", "", "Sender address the token authenticates (0x...)")
	expiry := flag.Duration("expiry", 30*time.Minute, "Token expiry duration (e.g., 30m, 1h, 24h)")
	outputFormat := flag.String("format", "compact", "Output format: compact, full, or debug")
	flag.Parse()

	if !common.IsHexAddress(*sender) {
		fmt.Fprintf(os.Stderr, "Error: -sender must be a hex address, got %q\n", *sender)
		os.Exit(1)
	}
	addr := common.HexToAddress(*sender)
	ja := jwtauth.New("HS256", []byte(*secret), nil)

	tokenStr, err := client.IssueToken(ja, addr, *expiry)
	if err != nil {
		slog.Error("Failed to generate token", "err", err)
		fmt.Fprintf(os.Stderr, "Error: Failed to generate token: %v\n", err)
		os.Exit(1)
	}

	switch *outputFormat {
	case "compact":
		fmt.Println(tokenStr)
	case "full":
		fmt.Printf("Token: %s\nSender: %s\nExpires: %s\n", tokenStr, addr.Hex(), time.Now().Add(*expiry).Format(time.RFC3339))
	case "debug":
		// Parse the token independently of jwtauth to display its contents
		token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
			return []byte(*secret), nil
		}, jwt.WithValidMethods([]string{"HS256"}))
		if err != nil {
			slog.Error("Failed to parse generated token", "err", err)
			fmt.Fprintf(os.Stderr, "Error: Failed to parse generated token: %v\n", err)
			os.Exit(1)
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			fmt.Fprintln(os.Stderr, "Error: Unexpected claims type")
			os.Exit(1)
		}
		claimsJSON, _ := json.MarshalIndent(claims, "", "  ")
		fmt.Printf("Token: %s\n\nHeader: %v\n\nClaims:\n%s\n", tokenStr, token.Header, claimsJSON)
	default:
		fmt.Fprintf(os.Stderr, "Error: Unknown output format: %s\n", *outputFormat)
		os.Exit(1)
	}
}
