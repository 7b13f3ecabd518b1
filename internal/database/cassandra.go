package database

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"
)

// DefaultCassandraQueryTimeout is used when the config leaves Timeout unset
const DefaultCassandraQueryTimeout = 5 * time.Second

// CassandraDB wraps the gocql Session with context support
type CassandraDB struct {
	Session *gocql.Session
}

// CassandraConfig holds Cassandra connection configuration
type CassandraConfig struct {
	Hosts    []string
	Keyspace string
	Username string
	Password string
	Timeout  time.Duration
}

// NewCassandraDB opens a session against the configured keyspace
func NewCassandraDB(config *CassandraConfig) (*CassandraDB, error) {
	cluster := gocql.NewCluster(config.Hosts...)
	cluster.Keyspace = config.Keyspace
	cluster.Consistency = gocql.Quorum

	cluster.Timeout = DefaultCassandraQueryTimeout
	if config.Timeout > 0 {
		cluster.Timeout = config.Timeout
	}

	if config.Username != "" && config.Password != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: config.Username,
			Password: config.Password,
		}
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create Cassandra session: %w", err)
	}
	return &CassandraDB{Session: session}, nil
}

// Close closes the Cassandra session
func (c *CassandraDB) Close() {
	c.Session.Close()
}

// QueryWithContext binds a query to ctx so it honours cancellation and deadlines
func (c *CassandraDB) QueryWithContext(ctx context.Context, stmt string, values ...any) *gocql.Query {
	return c.Session.Query(stmt, values...).WithContext(ctx)
}

// Ping runs a trivial query against the local node
func (c *CassandraDB) Ping(ctx context.Context) error {
	return c.QueryWithContext(ctx, "SELECT release_version FROM system.local").Exec()
}
