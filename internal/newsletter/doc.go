// Package newsletter manages newsletter subscriptions.
//
// Subscribe stores the subscriber and then, if a Mailer is configured, adds
// the address as a Brevo contact and sends a welcome email rendered from the
// embedded template. Provider failures are logged and counted but never fail
// the subscription, which is already durable by then.
package newsletter
