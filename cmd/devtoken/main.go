// devtoken signs a development bearer token for manual testing and the
// benchmark harness. The API only validates tokens; nothing issues them in
// production.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ledgerkit/ledgerkit/internal/transport/httpapi/middleware"
	"github.com/ledgerkit/ledgerkit/pkg/id"
)

func main() {
	var (
		secret = flag.String("secret", os.Getenv("JWT_SECRET"), "HMAC secret shared with the API (defaults to JWT_SECRET)")
		org    = flag.String("org", "", "organization id for the token subject (generated when empty)")
		scopes = flag.String("scopes", defaultScopes(), "comma-separated permission scopes")
		ttl    = flag.Duration("ttl", 24*time.Hour, "token lifetime")
	)
	flag.Parse()

	if *secret == "" {
		fmt.Fprintln(os.Stderr, "devtoken: a secret is required (flag -secret or JWT_SECRET)")
		os.Exit(1)
	}

	organizationID := *org
	if organizationID == "" {
		organizationID = id.New(id.KindOrganization)
	}

	token, err := middleware.NewJWTService(*secret).
		GenerateToken(organizationID, strings.Split(*scopes, ","), *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "devtoken: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("organization: %s\n", organizationID)
	fmt.Printf("token: %s\n", token)
}

func defaultScopes() string {
	return strings.Join([]string{
		middleware.ScopeLedgerRead, middleware.ScopeLedgerWrite, middleware.ScopeLedgerDelete,
		middleware.ScopeAccountRead, middleware.ScopeAccountWrite, middleware.ScopeAccountDelete,
		middleware.ScopeTxnRead, middleware.ScopeTxnWrite, middleware.ScopeTxnDelete,
		middleware.ScopeSettlementRead, middleware.ScopeSettlementWrite, middleware.ScopeSettlementDelete,
		middleware.ScopeMonitorRead, middleware.ScopeMonitorWrite,
		middleware.ScopeStatementRead, middleware.ScopeStatementWrite,
	}, ",")
}
