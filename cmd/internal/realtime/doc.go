// Package realtime pushes quota changes to connected clients over WebSocket.
//
// Each authenticated connection joins the Hub under its account id; the quota
// service publishes through Hub.PublishQuota and every session of that account
// receives a quota.updated event. Delivery is best effort: a full send queue
// drops the event rather than blocking the publisher.
package realtime
