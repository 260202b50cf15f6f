package sealed

import (
	"fmt"
	"strings"

	"github.com/opd-ai/paytrust/crypto"
)

// Purpose labels the kind of object a blob carries. It is the first AAD
// component.
type Purpose string

const (
	PurposeRequest              Purpose = "request"
	PurposeSubscriptionProposal Purpose = "subscription_proposal"
	PurposeHandoff              Purpose = "handoff"
)

// Storage layout of sealed objects under a peer's public directory.
const (
	PathPrefix                = "/pub/paykit.app/v0"
	requestsSubpath           = "requests"
	subscriptionProposalsPath = "subscriptions/proposals"
	handoffSubpath            = "handoff"
	noiseSubpath              = "noise"
)

// BuildAAD returns "<purpose>:<owner>:<path>". The same string must be
// rebuilt from the storage location at open time, so a blob copied to
// another path or owner no longer opens.
func BuildAAD(purpose Purpose, owner crypto.PeerID, path string) []byte {
	return []byte(string(purpose) + ":" + string(owner) + ":" + path)
}

// PaymentRequestPath is where a payment request for recipient is stored.
func PaymentRequestPath(recipient crypto.PeerID, requestID string) (string, error) {
	if err := validateID(requestID); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/%s/%s/%s", PathPrefix, requestsSubpath, crypto.ScopeHash(recipient), requestID), nil
}

// PaymentRequestsDir is the directory holding every request for recipient.
func PaymentRequestsDir(recipient crypto.PeerID) string {
	return fmt.Sprintf("%s/%s/%s/", PathPrefix, requestsSubpath, crypto.ScopeHash(recipient))
}

// SubscriptionProposalPath is where a subscription proposal for subscriber
// is stored.
func SubscriptionProposalPath(subscriber crypto.PeerID, proposalID string) (string, error) {
	if err := validateID(proposalID); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/%s/%s/%s", PathPrefix, subscriptionProposalsPath, crypto.ScopeHash(subscriber), proposalID), nil
}

// SecureHandoffPath is where a handoff blob is stored in the owner's space.
func SecureHandoffPath(requestID string) (string, error) {
	if err := validateID(requestID); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/%s/%s", PathPrefix, handoffSubpath, requestID), nil
}

// NoiseEndpointPath is where a peer publishes its handshake endpoint.
func NoiseEndpointPath() string {
	return PathPrefix + "/" + noiseSubpath
}

// PaymentRequestAAD builds the AAD for a request stored for recipient and
// owned by sender.
func PaymentRequestAAD(sender, recipient crypto.PeerID, requestID string) ([]byte, error) {
	path, err := PaymentRequestPath(recipient, requestID)
	if err != nil {
		return nil, err
	}
	return BuildAAD(PurposeRequest, sender, path), nil
}

// SubscriptionProposalAAD builds the AAD for a proposal stored for subscriber
// and owned by provider.
func SubscriptionProposalAAD(provider, subscriber crypto.PeerID, proposalID string) ([]byte, error) {
	path, err := SubscriptionProposalPath(subscriber, proposalID)
	if err != nil {
		return nil, err
	}
	return BuildAAD(PurposeSubscriptionProposal, provider, path), nil
}

// SecureHandoffAAD builds the AAD for a handoff blob owned by owner.
func SecureHandoffAAD(owner crypto.PeerID, requestID string) ([]byte, error) {
	path, err := SecureHandoffPath(requestID)
	if err != nil {
		return nil, err
	}
	return BuildAAD(PurposeHandoff, owner, path), nil
}

func validateID(id string) error {
	switch {
	case id == "":
		return fmt.Errorf("%w: empty id", ErrInvalidPath)
	case strings.ContainsAny(id, "/\\"):
		return fmt.Errorf("%w: id contains a separator", ErrInvalidPath)
	case id == "." || id == ".." || strings.Contains(id, ".."):
		return fmt.Errorf("%w: id contains a parent reference", ErrInvalidPath)
	}
	return nil
}
