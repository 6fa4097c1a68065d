/*
Package authsdk provides a client SDK and the shared wire types for the
keyhouse authentication service.

# Overview

The service implements an authorization code flow with PKCE. A client
proves the password once, receives a short-lived code bound to a PKCE
challenge and a state value, and redeems the code for an access token.
Refresh tokens never appear in response bodies: the service sets them as
an http-only cookie scoped to the refresh endpoint, paired with a
script-readable csrf cookie that must be echoed in the X-CSRF-Token header.

	client := authsdk.NewSDKClient("https://auth.example.com")

	user, err := client.Register(ctx, authsdk.RegistrationRequest{
		Login:    "alice",
		Password: "CorrectHorse9",
	})

	// PKCE pair, code request and exchange in one call
	tokens, err := client.Login(ctx, "alice", "CorrectHorse9")

	me, err := client.Me(ctx, tokens.AccessToken)

	// Rotate using the cookies kept in the client's jar
	tokens, err = client.Refresh(ctx)

	// Revoke every refresh token of the user
	err = client.Revoke(ctx, true)

The steps of Login can be run separately with GeneratePKCEChallenge,
RequestCode and ExchangeCode.

# Error Handling

Every non-2xx response is returned as *APIError. Codes are listed in the
ErrorCode constants; IsCode is a shortcut for errors.As plus a code check.

	_, err := client.Login(ctx, "alice", "wrong")
	var apiErr *authsdk.APIError
	if errors.As(err, &apiErr) && apiErr.Code == authsdk.ErrorCodeTooManyAttempts {
		fmt.Println("locked until", apiErr.BlockedUntil)
	}

The server side uses the same type: handlers write errors with
APIError.WriteError.
*/
package authsdk
