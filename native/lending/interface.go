package lending

import "frendlend/crypto"

// InterfaceIntrospectionID is the identifier of the introspection query
// itself, keccak256("supportsInterface(bytes4)")[:4].
var InterfaceIntrospectionID = Selector{0x01, 0xff, 0xc9, 0xa7}

const loanRequestTuple = "(uint256,(uint16,uint16),uint128,address,address,string,address,uint256,uint256,address,bytes4)"

// publicSignatures lists the canonical signatures of the engine's public
// operations. Their selectors XOR into the capability identifier.
var publicSignatures = []string{
	"offerLoan(" + loanRequestTuple + ")",
	"offerLoanWithMetadata(" + loanRequestTuple + ",(string,string))",
	"rejectLoanOffer(uint256)",
	"acceptLoan(uint256)",
	"acceptLoanWithReceiver(uint256,address)",
	"batchAcceptLoans(uint256[])",
	"payLoan(uint256,uint256)",
	"impairLoan(uint256)",
	"markLoanAsPaid(uint256)",
	"getLoan(uint256)",
	"getTotalAmountDue(uint256)",
	"getLoanOffer(uint256)",
	"getLoanOfferMetadata(uint256)",
	"loanOfferCount()",
	"protocolFeeBPS()",
	"processingFeeBPS()",
	"protocolFeesByToken(address)",
	"protocolFeeTokens(uint256)",
	"protocolFeeTokenBlacklist(address)",
	"setProtocolFee(uint16)",
	"setProcessingFee(uint16)",
	"withdrawAllFees()",
	"addToFeeTokenWhitelist(address)",
	"addToFeeTokenBlacklist(address)",
	"removeFromFeeTokenBlacklist(address)",
	"addToCallbackWhitelist(address,bytes4)",
	"removeFromCallbackWhitelist(address,bytes4)",
	"isCallbackWhitelisted(address,bytes4)",
	"admin()",
}

// SelectorOf returns the first four bytes of keccak256(signature).
func SelectorOf(signature string) Selector {
	var out Selector
	copy(out[:], crypto.Keccak256([]byte(signature))[:4])
	return out
}

// InterfaceID combines the selectors of every public operation with XOR, so
// the result does not depend on declaration order.
func InterfaceID() Selector {
	var id Selector
	for _, sig := range publicSignatures {
		sel := SelectorOf(sig)
		for i := range id {
			id[i] ^= sel[i]
		}
	}
	return id
}

// SupportsInterface answers capability discovery queries.
func (e *Engine) SupportsInterface(id Selector) bool {
	return id == InterfaceIntrospectionID || id == InterfaceID()
}
