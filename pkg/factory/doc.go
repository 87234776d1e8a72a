// Package factory creates guarded, recoverable accounts.
//
// A factory is installed once per chain with an owner, a two-factor
// verifier and an initial set of authorized deployers. Each Deploy call
// from a deployer turns an (authKey, deviceKey) pair, together with
// authKey's CreateAccount signature, into three contracts at deterministic
// addresses:
//
//   - an account owned solely by deviceKey;
//   - a two-factor guard bound to the factory's verifier, installed on the
//     account;
//   - a recovery manager bound to the account and authKey, enabled as the
//     account's module.
//
// Everything happens in one call and is announced by an AccountCreated
// event. Predict computes the addresses ahead of time.
//
//	f, err := factory.Install(ctx, ch, factory.Config{
//		Owner:             owner,
//		TwoFactorVerifier: verifier,
//		Deployers:         []common.Address{relayer},
//	})
//
//	_, err = ch.Execute(ctx, relayer, func(call *chain.Call) error {
//		created, err = f.Deploy(call, authKey, deviceKey, sig)
//		return err
//	})
package factory
