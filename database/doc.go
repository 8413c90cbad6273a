// Package database declares the read-it-later-anator DynamoDB table and
// verifies a deployed table against that declaration.
//
// # Overview
//
// The table uses a single-table design. Every record is addressed by a
// string partition key ("PK") and a string sort key ("SK"). Three Global
// Secondary Indexes carry the secondary access patterns, all projecting every
// attribute:
//
//   - [GSI1] (GSI1PK / GSI1SK): status-based queries, e.g. the unread
//     articles of a user.
//   - [GSI2] (GSI2PK / GSI2SK): date-based queries, e.g. the articles saved
//     in a date range.
//   - [GSI3] (GSI3PK / GSI3SK): tag-based queries and search.
//
// The table is billed on demand, encrypted with the AWS-managed key, emits a
// change stream with new and old images and expires records through the
// "ttl" attribute. Production tables additionally get point-in-time recovery
// and are retained when the stack is destroyed.
//
// # Declaring
//
// Build a [Spec] for an environment with [SpecFor] and register it with
// [New] inside a Pulumi program:
//
//	spec, err := database.SpecFor(environment.Prod)
//	db, err := database.New(ctx, "ReadItLater-Database-prod", spec)
//
// # Verifying
//
// [Client.Verify] describes the live table through the AWS SDK and reports
// every difference from the [Spec] at once:
//
//	client := database.NewClient(&awsCfg, logger)
//	if err := client.Connect(); err != nil { ... }
//	if err := client.Verify(ctx, spec); err != nil { ... }
package database
