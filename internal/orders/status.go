package orders

type Status string

const (
	StatusCreated       Status = "CREATED"
	StatusPaid          Status = "PAID"
	StatusPaymentFailed Status = "PAYMENT_FAILED"
	StatusShipped       Status = "SHIPPED"
	StatusDelivered     Status = "DELIVERED"
	StatusCancelled     Status = "CANCELLED"
)

// Actor identifies who is attempting a transition. The transition table is
// actor-gated: the same edge may be legal for one actor and not another.
type Actor string

const (
	ActorCustomer Actor = "CUSTOMER"
	ActorAdmin    Actor = "ADMIN"
	ActorSystem   Actor = "SYSTEM"
)

var validNext = map[Status]map[Status]map[Actor]bool{
	StatusCreated: {
		StatusCancelled:     {ActorCustomer: true, ActorAdmin: true, ActorSystem: true},
		StatusPaid:          {ActorSystem: true},
		StatusPaymentFailed: {ActorSystem: true},
	},
	StatusPaymentFailed: {
		StatusCancelled:     {ActorAdmin: true, ActorSystem: true},
		StatusPaid:          {ActorSystem: true},
		StatusPaymentFailed: {ActorSystem: true},
	},
	StatusPaid: {
		StatusShipped: {ActorAdmin: true},
	},
	StatusShipped: {
		StatusDelivered: {ActorAdmin: true},
	},
	StatusCancelled: {},
	StatusDelivered: {},
}

func CanTransition(from, to Status, actor Actor) bool {
	return validNext[from][to][actor]
}

// IsPrePayment reports whether the order has not yet resolved payment: these
// are the states that are payable, commit-eligible and expirable by the TTL
// sweep.
func IsPrePayment(s Status) bool {
	return s == StatusCreated || s == StatusPaymentFailed
}

func IsTerminal(s Status) bool {
	return s == StatusCancelled || s == StatusDelivered
}
