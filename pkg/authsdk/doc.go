/*
Package authsdk provides a client for the portal auth agent's HTTP surface.

The agent owns a single reconciled session: who is signed in, with which
application role, and whether a sign-in or sign-out is in flight. The SDK
lets other processes drive and observe that session.

	client := authsdk.NewSDKClient("http://localhost:8080")

	res, err := client.Login(ctx, "ada@example.com", "secret")
	if err != nil {
		return err // transport failure or unexpected status
	}
	if !res.OK {
		fmt.Println("login failed:", res.State.Error)
	}

	state, err := client.GetSession(ctx)

# Error Handling

Login and Logout report rejected attempts through the returned State, not
through err. err is reserved for transport problems and for responses the
agent should never send, which are returned as *APIError:

	var apiErr *authsdk.APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests {
		// back off
	}
*/
package authsdk
