package guard

import (
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/tendant/pluser/pkg/account"
	pluserrors "github.com/tendant/pluser/pkg/errors"
	"github.com/tendant/pluser/pkg/typeddata"
)

// BundleLength is the exact size of a guarded signature bundle: the owner
// signature followed by the two-factor verifier signature.
const BundleLength = 2 * typeddata.SignatureLength

// TwoFactorGuard requires every account transaction to be a plain call
// co-signed by a fixed two-factor verifier. It keeps no state.
type TwoFactorGuard struct {
	address           common.Address
	twoFactorVerifier common.Address
	verifier          typeddata.Verifier
}

var _ account.Guard = (*TwoFactorGuard)(nil)

// New creates a guard at address bound to twoFactorVerifier. A nil verifier
// means plain ECDSA recovery.
func New(address, twoFactorVerifier common.Address, verifier typeddata.Verifier) *TwoFactorGuard {
	if verifier == nil {
		verifier = typeddata.NewECDSAVerifier()
	}
	return &TwoFactorGuard{
		address:           address,
		twoFactorVerifier: twoFactorVerifier,
		verifier:          verifier,
	}
}

// CheckTransaction rejects delegate calls, bundles that are not exactly two
// signatures long, and bundles whose second signature is not from the
// two-factor verifier. The first signature is left to the account.
func (g *TwoFactorGuard) CheckTransaction(tx account.Transaction, txHash common.Hash, signatures []byte, sender common.Address) error {
	if tx.Operation != account.Call {
		slog.Debug("Guard rejected operation", "guard", g.address.Hex(), "operation", tx.Operation.String())
		return pluserrors.New(pluserrors.ErrCodeOnlyCallsAllowed, "only calls allowed").
			WithDetail("operation", tx.Operation.String())
	}

	if len(signatures) != BundleLength {
		return pluserrors.New(pluserrors.ErrCodeNotEnoughSignatures, "not enough signatures").
			WithDetail("length", len(signatures))
	}

	return typeddata.Verify(g.verifier, txHash, signatures[typeddata.SignatureLength:], g.twoFactorVerifier, "twoFactorVerifier")
}

// CheckAfterExecution accepts every outcome. All of the guard's policy is
// enforced before execution.
func (g *TwoFactorGuard) CheckAfterExecution(txHash common.Hash, success bool) error {
	slog.Debug("Guard post-execution check", "guard", g.address.Hex(), "txHash", txHash.Hex(), "success", success)
	return nil
}

func (g *TwoFactorGuard) Address() common.Address {
	return g.address
}

func (g *TwoFactorGuard) TwoFactorVerifier() common.Address {
	return g.twoFactorVerifier
}
