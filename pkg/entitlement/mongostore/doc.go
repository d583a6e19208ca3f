// Package mongostore keeps entitlement usage counters in MongoDB.
//
// Each (organization, feature, window) is a single document with the
// aggregate "total", the "organization" counter and a "workspaces"
// sub-document of per-workspace counters. A consume first upserts the
// window with $setOnInsert and then issues one FindOneAndUpdate whose
// filter carries the quota condition: the document matches only while the
// checked counter plus the amount fits the limit, so a rejected consume
// changes nothing. Decrements use a pipeline update that clamps at zero.
//
// Bounded windows carry an expires_at field covered by a TTL index, so
// history is retained for the configured period after a window ends.
package mongostore
