package constants

const (
	Create    = "CREATE"
	Update    = "UPDATE"
	Delete    = "DELETE"
	Register  = "REGISTER"
	Login     = "LOGIN"
	Request   = "REQUEST"
	Accept    = "ACCEPT"
	Reject    = "REJECT"
	Cancel    = "CANCEL"
	Complete  = "COMPLETE"
	Reconcile = "RECONCILE"
)
