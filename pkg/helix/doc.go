// Package helix is the shared request pipeline of a client for the Twitch
// Helix REST API.
//
// Resource wrappers describe each call with a CallDescriptor and hand it to a
// Client, which obtains a sufficiently scoped token from the configured
// AuthProvider, sends the request through a response-driven rate limiter and
// returns the raw JSON body or a typed error.
//
// # Getting Started
//
//	provider, _ := auth.NewClientCredentialsProvider(ctx, clientID, clientSecret)
//	client, err := helixclient.New(ctx, &helix.Config{AuthProvider: provider})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	descriptor := &helix.CallDescriptor{
//		Method: http.MethodGet,
//		URL:    "/streams",
//		Query:  url.Values{"game_id": {"33214"}},
//	}
//
//	streams, _ := helix.NewPaginatedRequest(client, descriptor, helix.IdentityMapper[Stream]())
//	for stream, err := range streams.Items(ctx) {
//		if err != nil {
//			log.Fatal(err)
//		}
//		fmt.Println(stream.UserName)
//	}
//
// # Pagination
//
// PaginatedRequest follows the server's cursor. GetNext pulls one page at a
// time; GetAll and Items restart from the first page on every call.
//
// # Errors
//
// Non-2xx responses surface as *HTTPStatusError; a token the validation
// endpoint rejects surfaces as *InvalidTokenError; a provider that cannot
// supply a requested scope fails with *ScopeError. Use IsNotFound,
// IsUnauthorized, IsRateLimited and IsScopeError to classify them.
//
// # Caching
//
// GET descriptors with a positive CacheTTL are served from Config.Cache.
// MemoryCache, NATSKVCache and RedisCache are provided, and CacheChain layers
// them.
package helix
