package accounts

import (
	"context"

	"github.com/uptrace/bun"
)

// ActivationResult reports the outcome of an activation key
type ActivationResult struct {
	User *User
	// Approved is true when the account ended up activated
	Approved bool
	// Decision is empty for re-verifications
	Decision Decision
}

// Activate consumes an activation key. For an unactivated user the key
// marks the email as verified and the domain policy decides approval. For
// an activated user it is a re-verification that extends every token.
func (l *Lifecycle) Activate(ctx context.Context, key string) (*ActivationResult, error) {
	result := &ActivationResult{}
	err := l.run(ctx, "activation transaction failed", func(ctx context.Context, tx bun.Tx, ob *txOutbox) error {
		user, err := l.store.Users().GetByActivationKeyTx(ctx, tx, key)
		if err != nil {
			return err
		}
		result.User = user
		claim := ActivationKeyClaim(key)
		if user.Activated {
			return l.reverify(ctx, tx, ob, user, claim, result)
		}
		return l.verifyAndApprove(ctx, tx, ob, user, claim, result)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (l *Lifecycle) reverify(ctx context.Context, tx bun.Tx, ob *txOutbox, user *User, claim KeyClaim, result *ActivationResult) error {
	if _, err := l.tokens.ExtendForReverification(ctx, tx, user); err != nil {
		return err
	}

	if _, err := l.states.Transition(ctx, userActor(user), user, StateActive,
		WithTransitionReason("email re-verified"),
	); err != nil {
		return err
	}
	if _, err := l.store.Users().ConsumeKeyTx(ctx, tx, user, claim); err != nil {
		return err
	}

	result.Approved = true
	ob.record(newEvent(ActivityEventReverified, userActor(user), user, nil))
	return nil
}

func (l *Lifecycle) verifyAndApprove(ctx context.Context, tx bun.Tx, ob *txOutbox, user *User, claim KeyClaim, result *ActivationResult) error {
	details, err := l.store.Details().GetByUserIDTx(ctx, tx, user.ID)
	if err != nil && !IsNotFound(err) {
		return err
	}

	original := user.LicenseType
	decision := Classify(original, user.EmailDomain(), l.policy.ApprovalDomains)
	result.Decision = decision

	if decision == DecisionManualReview {
		if _, err := l.states.Transition(ctx, userActor(user), user, StateAwaitingApproval,
			WithTransitionReason("email verified"),
		); err != nil {
			return err
		}
		if _, err := l.store.Users().ConsumeKeyTx(ctx, tx, user, claim); err != nil {
			return err
		}

		flags, err := l.reviewFlags(ctx, tx, user, details)
		if err != nil {
			return err
		}
		ob.notify(Notice{Kind: NoticeManualReview, User: user, Details: details, Flags: flags})
		ob.record(newEvent(ActivityEventActivated, userActor(user), user, map[string]any{
			"decision": decision,
		}))
		return nil
	}

	if decision == DecisionAutoCorrectToAcademic {
		user.LicenseType = LicenseAcademic
	}
	if _, err := l.states.Transition(ctx, userActor(user), user, StateActive,
		WithTransitionReason("approved by email domain"),
		WithTransitionMetadata(map[string]any{"decision": decision}),
	); err != nil {
		return err
	}
	if _, err := l.store.Users().ConsumeKeyTx(ctx, tx, user, claim); err != nil {
		return err
	}
	if _, err := l.tokens.IssueIfAbsent(ctx, tx, user, nil, nil); err != nil {
		return err
	}

	result.Approved = true
	if decision == DecisionAutoCorrectToAcademic {
		ob.notify(Notice{Kind: NoticeLicenseAutoCorrected, User: user, OriginalLicense: original})
	} else {
		ob.notify(Notice{Kind: NoticeApproved, User: user})
	}
	ob.record(newEvent(ActivityEventActivated, userActor(user), user, map[string]any{
		"decision":         decision,
		"original_license": original,
	}))
	return nil
}

func (l *Lifecycle) reviewFlags(ctx context.Context, tx bun.IDB, user *User, details *UserDetails) (ReviewFlags, error) {
	trialActivated, err := l.tokens.HasNonRenewableTx(ctx, tx, user)
	if err != nil {
		return ReviewFlags{}, err
	}
	flags := ReviewFlags{
		TrialActivated: trialActivated,
		TrialInitiated: TrialAccountInitiated(details),
		Clarification:  l.policy.Clarification(user.LicenseType, user.EmailDomain()),
	}
	if details != nil {
		flags.Embargoed = l.policy.IsEmbargoed(details.Country)
	}
	return flags, nil
}
