package shapes

var Default *Circle

type Base struct {
	ID int
}

func (b Base) Describe() string { return "base" }

type Circle struct {
	Base
	Radius   float64
	OnChange func(int) string
}

type Shape interface {
	Describe() string
}

func use(v any) {}

func guarded(c *Circle) float64 {
	if c != nil {
		return <!SMARTCAST!>c<!>.Radius
	}
	return 0
}

func early(c *Circle) string {
	if c == nil {
		return ""
	}
	return <!SMARTCAST!>c<!>.<!IMPLICIT_RECEIVER_SMARTCAST("DISPATCH", "Base")!>Describe<!>()
}

func assigned(c *Circle) {
	c = &Circle{}
	use(<!SMARTCAST!>c<!>)
}

func captured(c *Circle) func() float64 {
	if c != nil {
		return func() float64 { return <!SMARTCAST!>c<!>.Radius }
	}
	return nil
}

func reassignedCapture(c *Circle) {
	if c != nil {
		f := func() { use(<!UNSTABLE_SMARTCAST!>c<!>) }
		<!SMARTCAST!>f<!>()
	}
	c = nil
}

func global() {
	if Default != nil {
		use(<!UNSTABLE_SMARTCAST!>Default<!>)
	}
}

func field(c *Circle) {
	if c != nil && <!SMARTCAST!>c<!>.OnChange != nil {
		<!SMARTCAST!>c<!>.<!UNSTABLE_SMARTCAST!>OnChange<!>(1)
	}
}

func switched(s Shape) {
	switch s.(type) {
	case *Circle:
		use(<!SMARTCAST!>s<!>)
	}
}

func bound(s Shape) {
	switch v := s.(type) {
	case *Circle:
		use(v)
	}
}
