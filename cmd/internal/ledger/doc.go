// Package ledger owns the account and referral ledgers.
//
// Accounts carry the question quota (available, completed) and the cumulative
// score. Referral records track which e-mail was referred by whom and whether the
// referrer has been credited. All quota mutations are single-statement atomic
// updates; multi-step flows run inside Store.InTx.
package ledger
