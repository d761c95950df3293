package shipping

import (
	"errors"
	"fmt"
	"strings"

	validator "github.com/go-playground/validator/v10"
)

// ErrInvalidMethod is returned when a shipping method payload is inconsistent with its type.
var ErrInvalidMethod = errors.New("invalid shipping method")

// MethodKind discriminates shipping method variants.
type MethodKind string

const (
	KindPickupAtWorkshop MethodKind = "pickup-at-workshop"
	KindColissimo        MethodKind = "colissimo"
	KindMondialRelay     MethodKind = "mondial-relay"
)

// Address is a postal delivery address.
type Address struct {
	FullName   string `json:"fullName" validate:"required,max=120"`
	Line1      string `json:"line1" validate:"required,max=200"`
	Line2      string `json:"line2,omitempty" validate:"max=200"`
	PostalCode string `json:"postalCode" validate:"required,max=16"`
	City       string `json:"city" validate:"required,max=100"`
	Country    string `json:"country" validate:"required,len=2"`
	Phone      string `json:"phone,omitempty" validate:"max=32"`
}

// RelayPoint is a Mondial Relay pickup location.
type RelayPoint struct {
	ID      string  `json:"id" validate:"required"`
	Name    string  `json:"name" validate:"required"`
	Address Address `json:"address"`
}

// Method is implemented by PickupAtWorkshop, Colissimo and MondialRelay.
type Method interface {
	Kind() MethodKind
	input() MethodInput
}

// PickupAtWorkshop is collected at the workshop. It carries no address.
type PickupAtWorkshop struct{}

// Colissimo is home delivery to Address.
type Colissimo struct {
	Address Address
}

// MondialRelay is delivery to a relay point.
type MondialRelay struct {
	RelayPoint RelayPoint
}

func (PickupAtWorkshop) Kind() MethodKind { return KindPickupAtWorkshop }
func (Colissimo) Kind() MethodKind        { return KindColissimo }
func (MondialRelay) Kind() MethodKind     { return KindMondialRelay }

func (PickupAtWorkshop) input() MethodInput { return MethodInput{Kind: KindPickupAtWorkshop} }
func (m Colissimo) input() MethodInput {
	addr := m.Address
	return MethodInput{Kind: KindColissimo, Address: &addr}
}
func (m MondialRelay) input() MethodInput {
	rp := m.RelayPoint
	return MethodInput{Kind: KindMondialRelay, RelayPoint: &rp}
}

// MethodInput is the flat JSON form of a method.
type MethodInput struct {
	Kind       MethodKind  `json:"type" validate:"required,oneof=pickup-at-workshop colissimo mondial-relay"`
	Address    *Address    `json:"address,omitempty"`
	RelayPoint *RelayPoint `json:"relayPoint,omitempty"`
}

var validate = validator.New()

// ParseMethod builds the method variant matching in.Kind.
func ParseMethod(in MethodInput) (Method, error) {
	in.Kind = MethodKind(strings.TrimSpace(string(in.Kind)))
	if err := validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMethod, err)
	}
	switch in.Kind {
	case KindPickupAtWorkshop:
		if in.Address != nil || in.RelayPoint != nil {
			return nil, fmt.Errorf("%w: pickup at workshop takes no address", ErrInvalidMethod)
		}
		return PickupAtWorkshop{}, nil
	case KindColissimo:
		if in.Address == nil {
			return nil, fmt.Errorf("%w: colissimo requires an address", ErrInvalidMethod)
		}
		if in.RelayPoint != nil {
			return nil, fmt.Errorf("%w: colissimo takes no relay point", ErrInvalidMethod)
		}
		return Colissimo{Address: *in.Address}, nil
	case KindMondialRelay:
		if in.RelayPoint == nil {
			return nil, fmt.Errorf("%w: mondial relay requires a relay point", ErrInvalidMethod)
		}
		if in.Address != nil {
			return nil, fmt.Errorf("%w: mondial relay ships to the relay point address", ErrInvalidMethod)
		}
		return MondialRelay{RelayPoint: *in.RelayPoint}, nil
	}
	return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidMethod, in.Kind)
}

// Input returns the flat form of m.
func Input(m Method) MethodInput {
	if m == nil {
		return MethodInput{}
	}
	return m.input()
}
