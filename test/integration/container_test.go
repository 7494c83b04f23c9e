package integration

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const postgresImage = "postgres:16-alpine"

// startContainer runs a throwaway Postgres through the Docker CLI on a port
// Docker picks, and returns its connection string and a cleanup function.
func startContainer(ctx context.Context) (string, func(), error) {
	name := "medtrack-it-" + uuid.NewString()[:8]

	out, err := exec.CommandContext(ctx, "docker", "run", "-d", "--rm",
		"--name", name,
		"-p", "127.0.0.1::5432",
		"-e", "POSTGRES_USER=medtrack",
		"-e", "POSTGRES_PASSWORD=medtrack",
		"-e", "POSTGRES_DB=medtrack",
		postgresImage,
	).CombinedOutput()
	if err != nil {
		return "", nil, fmt.Errorf("docker run: %w\noutput: %s", err, out)
	}
	cleanup := func() {
		_ = exec.Command("docker", "rm", "-f", name).Run()
	}

	// "docker port" prints e.g. 127.0.0.1:49153
	out, err = exec.CommandContext(ctx, "docker", "port", name, "5432/tcp").Output()
	if err != nil {
		cleanup()
		return "", nil, fmt.Errorf("docker port: %w", err)
	}
	hostPort := strings.TrimSpace(strings.SplitN(string(out), "\n", 2)[0])

	connStr := fmt.Sprintf("postgres://medtrack:medtrack@%s/medtrack?sslmode=disable", hostPort)
	if err := waitForPostgres(ctx, connStr, 30*time.Second); err != nil {
		cleanup()
		return "", nil, err
	}
	return connStr, cleanup, nil
}

// waitForPostgres polls until the server answers a query. The entrypoint
// restarts Postgres once after init, so a single successful connect is not
// enough.
func waitForPostgres(ctx context.Context, connStr string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	ready := 0
	for {
		conn, err := pgx.Connect(ctx, connStr)
		if err == nil {
			var one int
			err = conn.QueryRow(ctx, "SELECT 1").Scan(&one)
			_ = conn.Close(ctx)
		}
		if err == nil {
			ready++
			if ready == 2 {
				return nil
			}
		} else {
			ready = 0
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("postgres not ready after %v: %w", timeout, err)
		case <-ticker.C:
		}
	}
}
