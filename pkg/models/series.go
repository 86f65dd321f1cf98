package models

// Series is an ordered list of labelled values, one per time bucket
type Series struct {
	Labels []string  `json:"labels"`
	Data   []float64 `json:"data"`
}

// NewSeries allocates a series with room for n points
func NewSeries(n int) Series {
	return Series{
		Labels: make([]string, 0, n),
		Data:   make([]float64, 0, n),
	}
}

// Append adds a point to the end of the series
func (s *Series) Append(label string, value float64) {
	s.Labels = append(s.Labels, label)
	s.Data = append(s.Data, value)
}

// Len returns the number of points
func (s Series) Len() int {
	return len(s.Data)
}

// Sum returns the total of all values
func (s Series) Sum() float64 {
	var total float64
	for _, v := range s.Data {
		total += v
	}
	return total
}

// Max returns the largest value, or 0 for an empty series
func (s Series) Max() float64 {
	var peak float64
	for i, v := range s.Data {
		if i == 0 || v > peak {
			peak = v
		}
	}
	return peak
}
