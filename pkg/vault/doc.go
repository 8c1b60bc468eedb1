// Package vault is a client-side credential and secret lifecycle manager
// for a Vault-compatible secret service.
//
// A Client authenticates through one of the backends in package auth,
// holds the resulting token, and logs in again when the token lease runs
// out. Secrets fetched with Watch are cached in a hierarchical store and
// refetched whenever their own lease expires. Every renewal is a keyed
// timer: "auth" for the credential and "secret:<address>" per secret.
//
// Basic use:
//
//	client, err := vault.New(vault.Config{Address: "https://vault.example.com:8200"})
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
//	err = client.Login(ctx, &vault.LoginOptions{
//		Backend: "userpass",
//		Options: map[string]interface{}{"username": "app", "password": password},
//	})
//	...
//	view, err := client.Watch(ctx, []vault.SecretRef{
//		{SourcePath: "/secret/shared"},
//		{Address: "db", SourcePath: "/database/creds/app"},
//	}, nil)
//
// Lifecycle changes are published on a small set of topics that callers
// can Subscribe to: TopicAuthenticated, TopicLoginError, TopicSecret,
// SecretTopic(address) and TopicError.
package vault
