// Package quota is the referral-and-quota service: registration with referral
// crediting, login, question consumption and the recording of scored answers.
//
// Every flow that touches more than one ledger row runs inside a single
// ledger.Store.InTx so a failure leaves no partial credit behind.
package quota
