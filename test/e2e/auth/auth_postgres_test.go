package auth_test

import (
	"context"
	"maps"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/network"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/aussiebroadwan/portal/pkg/authsdk"
)

// TestPostgresStore runs the sign-in flow against a postgres profile store
// reached over a shared container network.
func TestPostgresStore(t *testing.T) {
	ctx := t.Context()

	nw, err := network.New(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = nw.Remove(context.Background()) })

	pg, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("portal"),
		tcpostgres.WithUsername("portal"),
		tcpostgres.WithPassword("portal"),
		network.WithNetwork([]string{"db"}, nw),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	testcontainers.CleanupContainer(t, pg)
	require.NoError(t, err)

	env := baseEnv()
	maps.Copy(env, relaxedLimits())
	env["AUTH_STORE_DRIVER"] = "postgres"
	env["AUTH_DATABASE_URL"] = "postgres://portal:portal@db:5432/portal?sslmode=disable"

	client := authsdk.NewSDKClient(startAgent(t, env, network.WithNetwork([]string{"agent"}, nw)))

	health, err := client.GetReadiness(ctx)
	assertHealthy(t, health, err)

	res, err := client.Login(ctx, adminEmail, adminPassword)
	require.NoError(t, err)
	require.True(t, res.OK)
	assertSignedInAsAdmin(t, res.State)

	state, err := client.Logout(ctx)
	require.NoError(t, err)
	assertSignedOut(t, *state)
}
