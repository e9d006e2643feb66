package money

//semq:value
type Cents struct {
	Amount int64
}

//semq:value
type Range struct {
	Lo, Hi int
}

//semq:value
type Wrapper struct {
	R Range
}

//semq:value
type Optional struct {
	P *Range
}

//semq:value
type Empty struct{}

func Sum(a, b Cents) Cents { return a }

func (r Range) Len() int { return r.Hi - r.Lo }
