/*
Package identitysdk is the typed client and wire types for the roomkey
identity service.

The request and response structs in types.go are shared with the server's
HTTP handlers, so the two cannot drift apart. Every non-2xx response is
returned as an *APIError and can be matched against the predefined values:

	client := identitysdk.NewClient("https://id.example.com")

	res, err := client.Login(ctx, identitysdk.LoginRequest{Email: email, Password: pw})
	switch {
	case errors.Is(err, identitysdk.ErrInvalidCredentials):
		// wrong email or password
	case errors.Is(err, identitysdk.ErrAuthenticationUnavailable):
		// directory or identity provider down, try again later
	case err != nil:
		return err
	}

	if res.RequiresTwoFA {
		pending := client.WithToken(res.Token)
		full, err := pending.VerifyTwoFA(ctx, identitysdk.TwoFAVerifyRequest{Code: code})
		...
	}

Administrative calls need a full session token of a tenant administrator:

	admin := client.WithToken(adminToken)
	cfg, err := admin.CreateDirectoryConfig(ctx, identitysdk.DirectoryConfigRequest{...})
	result, err := admin.SyncDirectory(ctx, cfg.ID)

A Client is safe for concurrent use as long as its fields are not modified.
*/
package identitysdk
