package gen

import (
	"sync"

	"github.com/aquilax/go-perlin"
)

var (
	noiseMu   sync.Mutex
	noiseSeed int64
	noiseGen  *perlin.Perlin
)

// noise2D возвращает значение шума Перлина в диапазоне 0..1 для мировых координат.
// Генератор кэшируется по сиду: все чанки одного мира используют одно поле шума.
func noise2D(seed int64, x, y float64) float64 {
	noiseMu.Lock()
	if noiseGen == nil || noiseSeed != seed {
		alpha := 2.0  // Сглаживание шума
		beta := 2.0   // Частота шума
		n := int32(3) // Количество октав
		noiseGen = perlin.NewPerlin(alpha, beta, n, seed)
		noiseSeed = seed
	}
	g := noiseGen
	noiseMu.Unlock()

	v := (g.Noise2D(x, y) + 1.0) / 2.0
	// Перлин может чуть выходить за [-1,1] на границах октав
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
