// Package dynamodb provides an account store that keeps accounts in an Amazon
// DynamoDB table.
package dynamodb
