// Package accounts implements the account lifecycle of a licensed web
// application: registration, email activation, password reset, trial
// activation, API token issuance and administrative approval.
//
// Account lifecycle:
//   - A user's state is derived from the activated flag and the activation
//     key (pending_verification, awaiting_approval, active,
//     reverification_pending). AccountStateMachine owns the transition graph
//     and hooks; Lifecycle persists the result inside its transaction.
//   - On first activation Classify decides between auto approval, license
//     auto correction and manual review based on the email domain.
//
// Tokens:
//   - TokenIssuer creates, renews, expires and validates opaque API tokens.
//     Trial completion turns every token of the user into a non-renewable
//     trial token; a non-renewable expired token is terminal.
//
// Side effects:
//   - Every operation runs in one CredentialStore transaction. User cache
//     evictions run when the transaction ends, notices go through a
//     NoticeDispatcher after commit and ActivitySink events are best effort.
package accounts
