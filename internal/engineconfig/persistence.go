package engineconfig

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/dogmatiq/ferrite"
	"github.com/dogmatiq/tally/internal/instrumented"
	"github.com/dogmatiq/tally/persistence/account"
	dynamodbdriver "github.com/dogmatiq/tally/persistence/driver/aws/dynamodb"
	"github.com/dogmatiq/tally/persistence/driver/relational"
	"github.com/dogmatiq/tally/persistence/driver/tabular"
	_ "github.com/jackc/pgx/v4/stdlib" // registers the "pgx" database/sql driver
	_ "github.com/mattn/go-sqlite3"    // registers the "sqlite3" database/sql driver
)

var (
	// accountStoreDSN is the DSN describing which account store to use.
	accountStoreDSN = ferrite.
			URL("TALLY_ACCOUNT_DSN", "the DSN of the account store").
			Optional()

	resetAccounts = ferrite.
			Bool("TALLY_RESET_ACCOUNTS", "remove all accounts from the store before replaying a feed").
			WithDefault(true).
			Required()
)

// Store is an account store built from a DSN.
type Store struct {
	Accounts account.Store
	Setup    func(context.Context) error
	Close    func() error
}

// StoreFromDSN returns the account store described by the given DSN.
//
// The supported schemes are:
//
//   - file:///path/to/accounts.csv (tabular file)
//   - sqlite:///path/to/accounts.db (relational, SQLite)
//   - postgres://... or postgresql://... (relational, PostgreSQL)
//   - dynamodb://table?region=...&endpoint=... (DynamoDB)
func StoreFromDSN(dsn *url.URL) (Store, error) {
	switch dsn.Scheme {
	case "file":
		return Store{
			Accounts: &tabular.Store{
				Path: dsnPath(dsn),
			},
		}, nil

	case "sqlite", "sqlite3":
		return relationalStore("sqlite3", dsnPath(dsn))

	case "postgres", "postgresql":
		return relationalStore("pgx", dsn.String())

	case "dynamodb":
		return dynamoDBStore(dsn)

	default:
		return Store{}, fmt.Errorf("unsupported account store DSN scheme %q", dsn.Scheme)
	}
}

func dsnPath(dsn *url.URL) string {
	if dsn.Opaque != "" {
		return filepath.FromSlash(dsn.Opaque)
	}
	return filepath.FromSlash(dsn.Host + dsn.Path)
}

func relationalStore(driver, dsn string) (Store, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return Store{}, err
	}

	return Store{
		Accounts: &relational.Store{
			DB: db,
		},
		Setup: func(ctx context.Context) error {
			return relational.CreateSchema(ctx, db)
		},
		Close: db.Close,
	}, nil
}

func dynamoDBStore(dsn *url.URL) (Store, error) {
	table := dsn.Host
	if table == "" {
		return Store{}, fmt.Errorf("DynamoDB DSN must specify a table name")
	}

	var options []func(*config.LoadOptions) error

	q := dsn.Query()

	if region := q.Get("region"); region != "" {
		options = append(options, config.WithRegion(region))
	}

	if endpoint := q.Get("endpoint"); endpoint != "" {
		options = append(
			options,
			config.WithEndpointResolverWithOptions(
				aws.EndpointResolverWithOptionsFunc(
					func(service, region string, _ ...any) (aws.Endpoint, error) {
						return aws.Endpoint{URL: endpoint}, nil
					},
				),
			),
		)
	}

	cfg, err := config.LoadDefaultConfig(context.Background(), options...)
	if err != nil {
		return Store{}, err
	}

	client := dynamodb.NewFromConfig(cfg)

	return Store{
		Accounts: &dynamodbdriver.AccountStore{
			Client: client,
			Table:  table,
		},
		Setup: func(ctx context.Context) error {
			return dynamodbdriver.CreateAccountTable(ctx, client, table)
		},
	}, nil
}

func (c *Config) finalizePersistence() {
	if c.UseEnv {
		if c.Persistence.Accounts == nil {
			if dsn, ok := accountStoreDSN.Value(); ok {
				s, err := StoreFromDSN(dsn)
				if err != nil {
					panic(err)
				}

				if t, ok := s.Accounts.(*tabular.Store); ok {
					t.Logger = c.Telemetry.Logger
				}

				c.Persistence.Accounts = s.Accounts
				if s.Setup != nil {
					c.Persistence.Setup = append(c.Persistence.Setup, s.Setup)
				}
				if s.Close != nil {
					c.Persistence.Closers = append(c.Persistence.Closers, s.Close)
				}
			}
		}

		if c.Persistence.ResetAccounts == nil {
			v := resetAccounts.Value()
			c.Persistence.ResetAccounts = &v
		}
	}

	if c.Persistence.Accounts == nil {
		panic("no account store is configured, set TALLY_ACCOUNT_DSN or provide the WithAccountStore() option")
	}

	if c.Persistence.ResetAccounts == nil {
		v := false
		c.Persistence.ResetAccounts = &v
	}

	c.Persistence.Accounts = instrumented.NewAccountStore(
		c.Persistence.Accounts,
		c.Telemetry,
	)
}
