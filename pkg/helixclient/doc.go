// Package helixclient provides the primary entry point for constructing a
// client that implements the helix.Client interface.
//
// It wires configuration, HTTP transport, rate limiting, response caching
// and authentication together. Most applications build a provider from
// pkg/auth, pass it in a helix.Config, and describe calls with
// helix.CallDescriptor.
//
// Quick start
//
//	import (
//	  "context"
//	  "log"
//
//	  "github.com/fivetwenty-io/helix/pkg/auth"
//	  "github.com/fivetwenty-io/helix/pkg/helix"
//	  "github.com/fivetwenty-io/helix/pkg/helixclient"
//	)
//
//	func example() {
//	  ctx := context.Background()
//
//	  // App token from the client-credentials grant.
//	  cli, err := helixclient.NewWithClientCredentials(ctx, "client-id", "client-secret")
//	  if err != nil { log.Fatal(err) }
//
//	  // Or a user token that is refreshed when it expires.
//	  provider, err := auth.NewUserProvider("client-id", "client-secret", &helix.AccessToken{
//	    AccessToken:  "...",
//	    RefreshToken: "...",
//	  })
//	  if err != nil { log.Fatal(err) }
//
//	  cli, err = helixclient.New(ctx, &helix.Config{
//	    AuthProvider: provider,
//	    Cache:        helix.NewMemoryCache(helix.DefaultCacheSize),
//	  })
//	  if err != nil { log.Fatal(err) }
//
//	  body, err := cli.CallAPI(ctx, &helix.CallDescriptor{URL: "/users", Scope: "user:read:email"})
//	  if err != nil { log.Fatal(err) }
//	  _ = body
//	}
//
// # Helpers
//
// The package also provides convenience constructors NewWithToken,
// NewWithClientCredentials and NewWithUserToken.
package helixclient
