package weakc

import "math"

// primes holds the capacities a WeakStrongMap grows through, each roughly
// 1.2x the previous one.
var primes = [...]int{
	3, 7, 11, 17, 23, 29, 37, 47, 59, 71, 89, 107, 131, 163, 197, 239, 293,
	353, 431, 521, 631, 761, 919, 1103, 1327, 1597, 1931, 2333, 2801,
	3371, 4049, 4861, 5839, 7013, 8419, 10103, 12143, 14591, 17519,
	21023, 25229, 30293, 36353, 43627, 52361, 62851, 75431, 90523,
	108631, 130363, 156437, 187751, 225307, 270371, 324449, 389357,
	467237, 560689, 672827, 807403, 968897,
}

// GetPrime returns the smallest table prime that is >= minimum. Beyond the
// table it searches odd numbers by trial division.
func GetPrime(minimum int) int {
	for _, p := range primes {
		if p >= minimum {
			return p
		}
	}
	for i := minimum | 1; i < math.MaxInt; i += 2 {
		if IsPrime(i) {
			return i
		}
	}
	return minimum
}

// IsPrime reports whether n is prime.
func IsPrime(n int) bool {
	if n < 2 {
		return false
	}
	if n&1 == 0 {
		return n == 2
	}
	limit := int(math.Sqrt(float64(n)))
	for i := 3; i <= limit; i += 2 {
		if n%i == 0 {
			return false
		}
	}
	return true
}
