// SPDX-License-Identifier: GPL-3.0-or-later

// Copyright (c) 2025 Spruce Health

package store

import (
	"context"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dynamodbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/pkg/errors"

	"github.com/munsheeriocod/voi-ai/model"
)

// DynamoDBAPI is the part of the DynamoDB client the store uses
type DynamoDBAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
}

// statusGuard admits an update only for a known call and only when it is
// strictly newer, or equally new with a higher status rank
const statusGuard = "attribute_exists(call_id) AND (updated_at < :at OR (updated_at = :at AND status_rank < :rank))"

// DynamoDB stores calls keyed by call_id and contacts keyed by phone_key
type DynamoDB struct {
	client        DynamoDBAPI
	callsTable    string
	contactsTable string
}

var _ Store = (*DynamoDB)(nil)

func NewDynamoDB(client DynamoDBAPI, callsTable, contactsTable string) *DynamoDB {
	return &DynamoDB{
		client:        client,
		callsTable:    callsTable,
		contactsTable: contactsTable,
	}
}

// callItem is the DynamoDB shape of a CallRecord. Times are unix nanoseconds
// so the update guard can compare them numerically.
type callItem struct {
	CallID            string `dynamodbav:"call_id"`
	DestinationNumber string `dynamodbav:"destination_number"`
	CustomerReference string `dynamodbav:"customer_reference,omitempty"`
	Status            string `dynamodbav:"status"`
	StatusRank        int    `dynamodbav:"status_rank"`
	CreatedAt         int64  `dynamodbav:"created_at"`
	UpdatedAt         int64  `dynamodbav:"updated_at"`
	Duration          int    `dynamodbav:"duration,omitempty"`
	RecordingURL      string `dynamodbav:"recording_url,omitempty"`
	ErrorCode         string `dynamodbav:"error_code,omitempty"`
}

type contactItem struct {
	PhoneKey string `dynamodbav:"phone_key"`
	model.Contact
}

func (d *DynamoDB) CreateCall(ctx context.Context, rec model.CallRecord) (bool, error) {
	item, err := attributevalue.MarshalMap(callItem{
		CallID:            string(rec.CallID),
		DestinationNumber: rec.DestinationNumber,
		CustomerReference: rec.CustomerReference,
		Status:            string(rec.Status),
		StatusRank:        rec.Status.Rank(),
		CreatedAt:         unixNanos(rec.CreatedAt),
		UpdatedAt:         unixNanos(rec.UpdatedAt),
		Duration:          rec.Duration,
		RecordingURL:      rec.RecordingURL,
		ErrorCode:         rec.ErrorCode,
	})
	if err != nil {
		return false, errors.Wrap(err, "marshal call")
	}

	_, err = d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(d.callsTable),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(call_id)"),
	})
	if isConditionFailed(err) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "put call")
	}
	return true, nil
}

func (d *DynamoDB) ApplyStatus(ctx context.Context, u model.StatusUpdate) (bool, error) {
	at := strconv.FormatInt(unixNanos(u.At), 10)
	rank := strconv.Itoa(u.Status.Rank())

	update := "SET #status = :status, status_rank = :rank, updated_at = :at"
	values := map[string]dynamodbtypes.AttributeValue{
		":status": &dynamodbtypes.AttributeValueMemberS{Value: string(u.Status)},
		":rank":   &dynamodbtypes.AttributeValueMemberN{Value: rank},
		":at":     &dynamodbtypes.AttributeValueMemberN{Value: at},
	}
	if u.Duration > 0 {
		update += ", #duration = :duration"
		values[":duration"] = &dynamodbtypes.AttributeValueMemberN{Value: strconv.Itoa(u.Duration)}
	}
	if u.RecordingURL != "" {
		update += ", recording_url = :recording"
		values[":recording"] = &dynamodbtypes.AttributeValueMemberS{Value: u.RecordingURL}
	}
	if u.ErrorCode != "" {
		update += ", error_code = :error_code"
		values[":error_code"] = &dynamodbtypes.AttributeValueMemberS{Value: u.ErrorCode}
	}
	names := map[string]string{"#status": "status"}
	if u.Duration > 0 {
		names["#duration"] = "duration"
	}

	_, err := d.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(d.callsTable),
		Key: map[string]dynamodbtypes.AttributeValue{
			"call_id": &dynamodbtypes.AttributeValueMemberS{Value: string(u.CallID)},
		},
		UpdateExpression:          aws.String(update),
		ConditionExpression:       aws.String(statusGuard),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	})
	if err == nil {
		return true, nil
	}
	if !isConditionFailed(err) {
		return false, errors.Wrap(err, "update call status")
	}
	if _, err := d.GetCall(ctx, u.CallID); err != nil {
		return false, err
	}
	return false, nil
}

func (d *DynamoDB) GetCall(ctx context.Context, id model.SID) (model.CallRecord, error) {
	out, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(d.callsTable),
		Key: map[string]dynamodbtypes.AttributeValue{
			"call_id": &dynamodbtypes.AttributeValueMemberS{Value: string(id)},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return model.CallRecord{}, errors.Wrap(err, "get call")
	}
	if out.Item == nil {
		return model.CallRecord{}, ErrNotFound
	}

	var item callItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return model.CallRecord{}, errors.Wrap(err, "unmarshal call")
	}
	return model.CallRecord{
		CallID:            model.SID(item.CallID),
		DestinationNumber: item.DestinationNumber,
		CustomerReference: item.CustomerReference,
		Status:            model.CallStatus(item.Status),
		CreatedAt:         fromUnixNanos(item.CreatedAt),
		UpdatedAt:         fromUnixNanos(item.UpdatedAt),
		Duration:          item.Duration,
		RecordingURL:      item.RecordingURL,
		ErrorCode:         item.ErrorCode,
	}, nil
}

func (d *DynamoDB) PutContact(ctx context.Context, c model.Contact) error {
	key := model.PhoneKey(c.PhoneNumber)
	if key == "" {
		return errors.Errorf("contact %q: empty phone number", c.Name)
	}
	if c.ID == "" {
		c.ID = key
	}
	item, err := attributevalue.MarshalMap(contactItem{PhoneKey: key, Contact: c})
	if err != nil {
		return errors.Wrap(err, "marshal contact")
	}
	_, err = d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.contactsTable),
		Item:      item,
	})
	if err != nil {
		return errors.Wrap(err, "put contact")
	}
	return nil
}

func (d *DynamoDB) ContactByPhone(ctx context.Context, phone string) (model.Contact, error) {
	out, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(d.contactsTable),
		Key: map[string]dynamodbtypes.AttributeValue{
			"phone_key": &dynamodbtypes.AttributeValueMemberS{Value: model.PhoneKey(phone)},
		},
	})
	if err != nil {
		return model.Contact{}, errors.Wrap(err, "get contact")
	}
	if out.Item == nil {
		return model.Contact{}, ErrNotFound
	}
	var item contactItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return model.Contact{}, errors.Wrap(err, "unmarshal contact")
	}
	return item.Contact, nil
}

func (d *DynamoDB) Close() error {
	return nil
}

func isConditionFailed(err error) bool {
	var ccf *dynamodbtypes.ConditionalCheckFailedException
	return err != nil && errors.As(err, &ccf)
}
