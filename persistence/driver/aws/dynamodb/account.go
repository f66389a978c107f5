package dynamodb

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/dogmatiq/tally/ledger"
	"github.com/dogmatiq/tally/persistence/account"
	"github.com/dogmatiq/tally/persistence/driver/aws/internal/awsx"
)

// AccountStore is an implementation of [account.Store] that stores accounts in
// a DynamoDB table.
//
// It is not safe for concurrent use.
type AccountStore struct {
	// Client is the DynamoDB client to use.
	Client *dynamodb.Client

	// Table is the name of the table used to store accounts.
	Table string

	// DecorateGetItem is an optional function that is called before each
	// DynamoDB "GetItem" request.
	//
	// It may modify the API input in-place. It returns options that will be
	// applied to the request.
	DecorateGetItem func(*dynamodb.GetItemInput) []func(*dynamodb.Options)

	// DecoratePutItem is an optional function that is called before each
	// DynamoDB "PutItem" request.
	//
	// It may modify the API input in-place. It returns options that will be
	// applied to the request.
	DecoratePutItem func(*dynamodb.PutItemInput) []func(*dynamodb.Options)

	// DecorateUpdateItem is an optional function that is called before each
	// DynamoDB "UpdateItem" request.
	//
	// It may modify the API input in-place. It returns options that will be
	// applied to the request.
	DecorateUpdateItem func(*dynamodb.UpdateItemInput) []func(*dynamodb.Options)

	// DecorateScan is an optional function that is called before each DynamoDB
	// "Scan" request.
	//
	// It may modify the API input in-place. It returns options that will be
	// applied to the request.
	DecorateScan func(*dynamodb.ScanInput) []func(*dynamodb.Options)

	// DecorateDeleteItem is an optional function that is called before each
	// DynamoDB "DeleteItem" request.
	//
	// It may modify the API input in-place. It returns options that will be
	// applied to the request.
	DecorateDeleteItem func(*dynamodb.DeleteItemInput) []func(*dynamodb.Options)
}

var _ account.Store = (*AccountStore)(nil)

const (
	accountClientAttr    = "Client"
	accountAvailableAttr = "Available"
	accountHeldAttr      = "Held"
	accountTotalAttr     = "Total"
	accountLockedAttr    = "Locked"
)

// Load returns the account of the given client.
func (s *AccountStore) Load(ctx context.Context, id ledger.ClientID) (ledger.Account, error) {
	out, err := awsx.Do(
		ctx,
		s.Client.GetItem,
		s.DecorateGetItem,
		&dynamodb.GetItemInput{
			TableName: aws.String(s.Table),
			Key:       clientKey(id),
		},
	)
	if err != nil || out.Item == nil {
		return ledger.NewAccount(id), err
	}

	return unmarshalAccount(out.Item)
}

// Save stores a, replacing any existing account of the same client.
//
// It probes for an existing item and then issues either an "UpdateItem" of the
// mutable attributes or a "PutItem" of the whole account.
func (s *AccountStore) Save(ctx context.Context, a ledger.Account) error {
	ok, err := s.exists(ctx, a.Client)
	if err != nil {
		return err
	}

	if ok {
		_, err := awsx.Do(
			ctx,
			s.Client.UpdateItem,
			s.DecorateUpdateItem,
			&dynamodb.UpdateItemInput{
				TableName:        aws.String(s.Table),
				Key:              clientKey(a.Client),
				UpdateExpression: aws.String(`SET #A = :A, #H = :H, #T = :T, #L = :L`),
				ExpressionAttributeNames: map[string]string{
					"#A": accountAvailableAttr,
					"#H": accountHeldAttr,
					"#T": accountTotalAttr,
					"#L": accountLockedAttr,
				},
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":A": marshalBalance(a.Available),
					":H": marshalBalance(a.Held),
					":T": marshalBalance(a.Total),
					":L": &types.AttributeValueMemberBOOL{Value: a.Locked},
				},
			},
		)
		return err
	}

	_, err = awsx.Do(
		ctx,
		s.Client.PutItem,
		s.DecoratePutItem,
		&dynamodb.PutItemInput{
			TableName: aws.String(s.Table),
			Item:      marshalAccount(a),
		},
	)
	return err
}

func (s *AccountStore) exists(ctx context.Context, id ledger.ClientID) (bool, error) {
	// Request only the key attribute to avoid fetching unnecessary data.
	out, err := awsx.Do(
		ctx,
		s.Client.GetItem,
		s.DecorateGetItem,
		&dynamodb.GetItemInput{
			TableName:            aws.String(s.Table),
			Key:                  clientKey(id),
			ProjectionExpression: aws.String(`#C`),
			ExpressionAttributeNames: map[string]string{
				"#C": accountClientAttr,
			},
		},
	)
	if err != nil {
		return false, err
	}

	return out.Item != nil, nil
}

// Range invokes fn for each stored account in an undefined order.
func (s *AccountStore) Range(ctx context.Context, fn account.RangeFunc) error {
	return s.scan(
		ctx,
		func(ctx context.Context, item map[string]types.AttributeValue) (bool, error) {
			a, err := unmarshalAccount(item)
			if err != nil {
				return false, err
			}

			return fn(ctx, a)
		},
	)
}

// Reset removes all stored accounts.
func (s *AccountStore) Reset(ctx context.Context) error {
	return s.scan(
		ctx,
		func(ctx context.Context, item map[string]types.AttributeValue) (bool, error) {
			_, err := awsx.Do(
				ctx,
				s.Client.DeleteItem,
				s.DecorateDeleteItem,
				&dynamodb.DeleteItemInput{
					TableName: aws.String(s.Table),
					Key: map[string]types.AttributeValue{
						accountClientAttr: item[accountClientAttr],
					},
				},
			)
			return true, err
		},
	)
}

func (s *AccountStore) scan(
	ctx context.Context,
	fn func(context.Context, map[string]types.AttributeValue) (bool, error),
) error {
	in := &dynamodb.ScanInput{
		TableName:      aws.String(s.Table),
		ConsistentRead: aws.Bool(true),
	}

	for {
		out, err := awsx.Do(
			ctx,
			s.Client.Scan,
			s.DecorateScan,
			in,
		)
		if err != nil {
			return err
		}

		for _, item := range out.Items {
			ok, err := fn(ctx, item)
			if !ok || err != nil {
				return err
			}
		}

		if out.LastEvaluatedKey == nil {
			return nil
		}

		in.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

// tableActiveTimeout is the maximum time to wait for a new table to become
// active.
const tableActiveTimeout = 2 * time.Minute

// CreateAccountTable creates a DynamoDB table for use with [AccountStore].
//
// It does not fail if the table already exists. It returns once the table is
// active.
func CreateAccountTable(
	ctx context.Context,
	client *dynamodb.Client,
	table string,
	decorators ...func(*dynamodb.CreateTableInput) []func(*dynamodb.Options),
) error {
	out, err := awsx.Do(
		ctx,
		client.CreateTable,
		func(in *dynamodb.CreateTableInput) []func(*dynamodb.Options) {
			var options []func(*dynamodb.Options)
			for _, dec := range decorators {
				options = append(options, dec(in)...)
			}

			return options
		},
		&dynamodb.CreateTableInput{
			TableName: aws.String(table),
			AttributeDefinitions: []types.AttributeDefinition{
				{
					AttributeName: aws.String(accountClientAttr),
					AttributeType: types.ScalarAttributeTypeN,
				},
			},
			KeySchema: []types.KeySchemaElement{
				{
					AttributeName: aws.String(accountClientAttr),
					KeyType:       types.KeyTypeHash,
				},
			},
			BillingMode: types.BillingModePayPerRequest,
		},
	)

	if err != nil {
		if !errors.As(err, new(*types.ResourceInUseException)) {
			return err
		}
	} else if out.TableDescription != nil && out.TableDescription.TableStatus == types.TableStatusActive {
		return nil
	}

	return dynamodb.
		NewTableExistsWaiter(
			client,
			func(o *dynamodb.TableExistsWaiterOptions) {
				o.MinDelay = 500 * time.Millisecond
				o.MaxDelay = 5 * time.Second
			},
		).
		Wait(
			ctx,
			&dynamodb.DescribeTableInput{
				TableName: aws.String(table),
			},
			tableActiveTimeout,
		)
}

func clientKey(id ledger.ClientID) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		accountClientAttr: &types.AttributeValueMemberN{
			Value: strconv.FormatUint(uint64(id), 10),
		},
	}
}

func marshalBalance(v float32) *types.AttributeValueMemberN {
	return &types.AttributeValueMemberN{
		Value: strconv.FormatFloat(float64(v), 'g', -1, 32),
	}
}

func marshalAccount(a ledger.Account) map[string]types.AttributeValue {
	item := clientKey(a.Client)
	item[accountAvailableAttr] = marshalBalance(a.Available)
	item[accountHeldAttr] = marshalBalance(a.Held)
	item[accountTotalAttr] = marshalBalance(a.Total)
	item[accountLockedAttr] = &types.AttributeValueMemberBOOL{Value: a.Locked}
	return item
}

func unmarshalAccount(item map[string]types.AttributeValue) (ledger.Account, error) {
	var a ledger.Account

	client, err := getAttr[*types.AttributeValueMemberN](item, accountClientAttr)
	if err != nil {
		return a, err
	}

	id, err := strconv.ParseUint(client.Value, 10, 16)
	if err != nil {
		return a, err
	}
	a.Client = ledger.ClientID(id)

	for name, dst := range map[string]*float32{
		accountAvailableAttr: &a.Available,
		accountHeldAttr:      &a.Held,
		accountTotalAttr:     &a.Total,
	} {
		if *dst, err = unmarshalBalance(item, name); err != nil {
			return a, err
		}
	}

	locked, err := getAttr[*types.AttributeValueMemberBOOL](item, accountLockedAttr)
	if err != nil {
		return a, err
	}
	a.Locked = locked.Value

	return a, nil
}

func unmarshalBalance(item map[string]types.AttributeValue, name string) (float32, error) {
	attr, err := getAttr[*types.AttributeValueMemberN](item, name)
	if err != nil {
		return 0, err
	}

	v, err := strconv.ParseFloat(attr.Value, 32)
	return float32(v), err
}
