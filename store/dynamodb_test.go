// SPDX-License-Identifier: GPL-3.0-or-later

// Copyright (c) 2025 Spruce Health

package store_test

import (
	"context"
	"maps"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dynamodbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/munsheeriocod/voi-ai/model"
	"github.com/munsheeriocod/voi-ai/store"
)

const statusGuard = "attribute_exists(call_id) AND (updated_at < :at OR (updated_at = :at AND status_rank < :rank))"

type item = map[string]dynamodbtypes.AttributeValue

// fakeDynamo keeps items in memory and evaluates the condition expressions
// the store sends. Any other expression is an error.
type fakeDynamo struct {
	mu      sync.Mutex
	keys    map[string]string
	tables  map[string]map[string]item
	updates []*dynamodb.UpdateItemInput
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{
		keys:   map[string]string{"calls": "call_id", "contacts": "phone_key"},
		tables: make(map[string]map[string]item),
	}
}

var _ store.DynamoDBAPI = (*fakeDynamo)(nil)

func (f *fakeDynamo) table(name string) map[string]item {
	t, ok := f.tables[name]
	if !ok {
		t = make(map[string]item)
		f.tables[name] = t
	}
	return t
}

func (f *fakeDynamo) key(table string, it item) string {
	s, _ := it[f.keys[table]].(*dynamodbtypes.AttributeValueMemberS)
	if s == nil {
		return ""
	}
	return s.Value
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := aws.ToString(in.TableName)
	t := f.table(name)
	k := f.key(name, in.Item)
	_, exists := t[k]

	switch cond := aws.ToString(in.ConditionExpression); cond {
	case "":
	case "attribute_not_exists(" + f.keys[name] + ")":
		if exists {
			return nil, conditionFailed()
		}
	default:
		return nil, errors.Errorf("unsupported condition %q", cond)
	}
	t[k] = maps.Clone(in.Item)
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := aws.ToString(in.TableName)
	it, ok := f.table(name)[f.key(name, in.Key)]
	if !ok {
		return &dynamodb.GetItemOutput{}, nil
	}
	return &dynamodb.GetItemOutput{Item: maps.Clone(it)}, nil
}

func (f *fakeDynamo) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, in)
	name := aws.ToString(in.TableName)
	t := f.table(name)
	k := f.key(name, in.Key)
	it, exists := t[k]

	if cond := aws.ToString(in.ConditionExpression); cond != statusGuard {
		return nil, errors.Errorf("unsupported condition %q", cond)
	}
	if !exists {
		return nil, conditionFailed()
	}
	storedAt, at := number(it["updated_at"]), number(in.ExpressionAttributeValues[":at"])
	storedRank, rank := number(it["status_rank"]), number(in.ExpressionAttributeValues[":rank"])
	if !(storedAt < at || (storedAt == at && storedRank < rank)) {
		return nil, conditionFailed()
	}

	set, ok := strings.CutPrefix(aws.ToString(in.UpdateExpression), "SET ")
	if !ok {
		return nil, errors.Errorf("unsupported update %q", aws.ToString(in.UpdateExpression))
	}
	for _, assign := range strings.Split(set, ", ") {
		attr, placeholder, _ := strings.Cut(assign, " = ")
		if named, ok := in.ExpressionAttributeNames[attr]; ok {
			attr = named
		}
		v, ok := in.ExpressionAttributeValues[placeholder]
		if !ok {
			return nil, errors.Errorf("missing value %s", placeholder)
		}
		it[attr] = v
	}
	return &dynamodb.UpdateItemOutput{}, nil
}

func number(v dynamodbtypes.AttributeValue) int64 {
	n, ok := v.(*dynamodbtypes.AttributeValueMemberN)
	if !ok {
		return 0
	}
	i, _ := strconv.ParseInt(n.Value, 10, 64)
	return i
}

func conditionFailed() error {
	return &dynamodbtypes.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
}

func TestDynamoDBStatusGuard(t *testing.T) {
	at := t0.Add(10 * time.Second)
	cases := []struct {
		name    string
		update  model.StatusUpdate
		applied bool
		status  model.CallStatus
	}{
		{"older", model.StatusUpdate{Status: model.CallCompleted, At: at.Add(-time.Second)}, false, model.CallInProgress},
		{"same time lower rank", model.StatusUpdate{Status: model.CallRinging, At: at}, false, model.CallInProgress},
		{"same time same rank", model.StatusUpdate{Status: model.CallInProgress, At: at}, false, model.CallInProgress},
		{"same time higher rank", model.StatusUpdate{Status: model.CallCompleted, At: at}, true, model.CallCompleted},
		{"newer lower rank", model.StatusUpdate{Status: model.CallRinging, At: at.Add(time.Second)}, true, model.CallRinging},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			fake := newFakeDynamo()
			s := store.NewDynamoDB(fake, "calls", "contacts")
			_, err := s.CreateCall(ctx, newCall("CA9"))
			require.NoError(t, err)
			applied, err := s.ApplyStatus(ctx, model.StatusUpdate{CallID: "CA9", Status: model.CallInProgress, At: at})
			require.NoError(t, err)
			require.True(t, applied)

			u := tc.update
			u.CallID = "CA9"
			applied, err = s.ApplyStatus(ctx, u)
			require.NoError(t, err)
			assert.Equal(t, tc.applied, applied)

			got, err := s.GetCall(ctx, "CA9")
			require.NoError(t, err)
			assert.Equal(t, tc.status, got.Status)

			last := fake.updates[len(fake.updates)-1]
			assert.Equal(t, statusGuard, aws.ToString(last.ConditionExpression))
			assert.Equal(t, u.At.UnixNano(), number(last.ExpressionAttributeValues[":at"]))
			assert.Equal(t, int64(u.Status.Rank()), number(last.ExpressionAttributeValues[":rank"]))
		})
	}
}

func TestDynamoDBUpdateNamesOptionalFields(t *testing.T) {
	ctx := context.Background()
	fake := newFakeDynamo()
	s := store.NewDynamoDB(fake, "calls", "contacts")
	_, err := s.CreateCall(ctx, newCall("CA8"))
	require.NoError(t, err)

	_, err = s.ApplyStatus(ctx, model.StatusUpdate{CallID: "CA8", Status: model.CallRinging, At: t0.Add(time.Second)})
	require.NoError(t, err)
	_, err = s.ApplyStatus(ctx, model.StatusUpdate{CallID: "CA8", Status: model.CallCompleted, At: t0.Add(time.Minute), Duration: 42})
	require.NoError(t, err)

	require.Len(t, fake.updates, 2)
	assert.NotContains(t, aws.ToString(fake.updates[0].UpdateExpression), "#duration")
	assert.NotContains(t, fake.updates[0].ExpressionAttributeNames, "#duration")
	assert.Contains(t, aws.ToString(fake.updates[1].UpdateExpression), "#duration = :duration")
	assert.Equal(t, "duration", fake.updates[1].ExpressionAttributeNames["#duration"])

	got, err := s.GetCall(ctx, "CA8")
	require.NoError(t, err)
	assert.Equal(t, 42, got.Duration)
	assert.Equal(t, t0.Add(time.Minute), got.UpdatedAt)
}
