package ann

// Flat is an exact brute-force inner product index.
type Flat struct {
	Dim  int
	Data []float32
}

func NewFlat(dim int) *Flat {
	return &Flat{Dim: dim}
}

func (f *Flat) Kind() Kind     { return KindFlat }
func (f *Flat) Dimension() int { return f.Dim }

func (f *Flat) Len() int {
	if f.Dim == 0 {
		return 0
	}
	return len(f.Data) / f.Dim
}

func (f *Flat) Add(vectors [][]float32) {
	for _, v := range vectors {
		f.Data = append(f.Data, v...)
	}
}

func (f *Flat) vector(id int) []float32 {
	return f.Data[id*f.Dim : (id+1)*f.Dim]
}

func (f *Flat) Search(query []float32, k int) []Result {
	if len(query) != f.Dim || k <= 0 {
		return nil
	}
	n := f.Len()
	results := make([]Result, 0, n)
	for id := 0; id < n; id++ {
		results = append(results, Result{ID: id, Score: dot(query, f.vector(id))})
	}
	return topK(results, k)
}
