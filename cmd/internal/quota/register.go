package quota

import (
	"context"
	"errors"

	"interviewprep/cmd/internal/ledger"
	"interviewprep/cmd/internal/settings"
	"interviewprep/cmd/security/password"
)

// Register creates an account, applying ReferralCode when it is valid and unused.
//
// An unknown code or an e-mail that was already referred is ignored; the
// account is still created without the referral bonus.
func (s *Service) Register(ctx context.Context, in RegisterInput) (Registration, error) {
	if in.Email == "" {
		return Registration{}, ledger.OpError{Op: "quota.Register", Kind: ledger.ErrInvalidInput, Msg: "email required"}
	}

	if _, err := s.ledger.GetAccountByEmail(ctx, in.Email); err == nil {
		return Registration{}, ErrDuplicateEmail
	} else if !ledger.IsNotFound(err) {
		return Registration{}, err
	}

	group := s.groups.Assign()
	baseline := FreeBaseline + s.settings.GetConfigValue(ctx, settings.KeyLoginQuestions, group)

	plain, err := password.Generate(password.GeneratedLength)
	if err != nil {
		return Registration{}, err
	}
	hash, err := s.passwords.Hash(plain)
	if err != nil {
		return Registration{}, err
	}

	var (
		acct     ledger.Account
		credit   referralCredit
		applied  bool
		starting int
	)
	err = s.ledger.InTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		starting = baseline
		applied = false

		if in.ReferralCode != "" {
			c, err := s.creditReferrer(ctx, tx, in.ReferralCode, in.Email)
			switch {
			case err == nil:
				credit = c
				applied = true
				starting += s.settings.GetConfigValue(ctx, settings.KeyReferralBonusNew, group)
			case errors.Is(err, errInvalidReferralCode), ledger.IsDuplicateReferral(err):
				s.log.DebugContext(ctx, "quota.register.referral_ignored", "reason", err)
			default:
				return err
			}
		}

		a, err := tx.CreateAccount(ctx, ledger.CreateAccountInput{
			Email:              in.Email,
			Group:              group,
			PasswordHash:       hash,
			QuestionsAvailable: starting,
			Now:                s.now(),
		})
		if err != nil {
			return err
		}
		acct = a
		return nil
	})
	if err != nil {
		if !ledger.IsDuplicateEmail(err) {
			s.log.ErrorContext(ctx, "quota.register.fail", "email", in.Email, "err", err)
		}
		return Registration{}, err
	}

	if applied {
		s.publisher.PublishQuota(credit.referrerID, credit.referrerQuota)
	}
	s.observer.Registered(group, applied)
	s.log.InfoContext(ctx, "quota.register.ok",
		"account_id", acct.ID,
		"group", group,
		"referral_applied", applied,
		"questions_available", acct.QuestionsAvailable,
	)

	return Registration{Account: acct, Password: plain, ReferralApplied: applied}, nil
}

type referralCredit struct {
	referrerID    string
	referrerQuota int
}

// creditReferrer records the referral and pays the referrer's bonus inside tx.
func (s *Service) creditReferrer(ctx context.Context, tx ledger.Tx, code, email string) (referralCredit, error) {
	referrer, err := tx.GetAccountByReferralCode(ctx, code)
	if err != nil {
		if ledger.IsNotFound(err) {
			return referralCredit{}, errInvalidReferralCode
		}
		return referralCredit{}, err
	}

	if _, err := tx.RecordReferral(ctx, referrer.ID, email); err != nil {
		return referralCredit{}, err
	}

	bonus := s.settings.GetConfigValue(ctx, settings.KeyReferralBonusExisting, referrer.Group)
	n, err := tx.AdjustQuestionsAvailable(ctx, referrer.ID, bonus)
	if err != nil {
		return referralCredit{}, err
	}
	if err := tx.MarkBonusGranted(ctx, referrer.ID, email); err != nil {
		return referralCredit{}, err
	}

	return referralCredit{referrerID: referrer.ID, referrerQuota: n}, nil
}

// Login checks credentials. Unknown e-mail and wrong password are indistinguishable.
func (s *Service) Login(ctx context.Context, email, pw string) (ledger.Account, error) {
	acct, err := s.ledger.GetAccountByEmail(ctx, email)
	if err != nil {
		if ledger.IsNotFound(err) {
			_, _ = s.passwords.Verify(s.dummyHash, pw)
			return ledger.Account{}, ErrInvalidCredentials
		}
		return ledger.Account{}, err
	}

	ok, err := s.passwords.Verify(acct.PasswordHash, pw)
	if err != nil {
		s.log.WarnContext(ctx, "quota.login.bad_hash", "account_id", acct.ID, "err", err)
		return ledger.Account{}, ErrInvalidCredentials
	}
	if !ok {
		return ledger.Account{}, ErrInvalidCredentials
	}

	if s.passwords.NeedsRehash(acct.PasswordHash) {
		if h, err := s.passwords.Hash(pw); err == nil {
			if err := s.ledger.SetPasswordHash(ctx, acct.ID, h); err != nil {
				s.log.WarnContext(ctx, "quota.login.rehash_fail", "account_id", acct.ID, "err", err)
			} else {
				acct.PasswordHash = h
			}
		}
	}

	return acct, nil
}
