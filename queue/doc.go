// Package queue declares the read-it-later-anator work queues and operates
// on their dead-letter queues.
//
// # Queues
//
// Two standard SQS queues carry background work:
//
//   - article-processing: content fetch and AI analysis. Visibility timeout
//     15 minutes, moved to its DLQ after 3 receives.
//   - digest-generation: visibility timeout 10 minutes, moved to its DLQ
//     after 2 receives.
//
// Both long-poll for 20 seconds and keep messages for 4 days. Their
// dead-letter queues keep messages for 14 days. Every queue is encrypted with
// SQS-managed keys.
//
// # Alarms
//
// When alarms are enabled (prod by default) each DLQ gets a CloudWatch alarm
// that fires as soon as one message is visible. Configuring an alert e-mail
// adds an SNS topic with an e-mail subscription as the alarm action.
//
// # Operations
//
// [Client.Verify] checks deployed queues and alarms against a [Spec].
// [Client.DeadLetterDepth] reports how many messages wait in each DLQ and
// [Client.Redrive] asks SQS to move them back to the source queue.
//
// The package does not consume messages. Consumers live with the services
// that own the work.
package queue
