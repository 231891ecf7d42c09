package memory

import (
	"fmt"

	"github.com/yndnr/sessiond/internal/core/domain"
)

// MaxRetries bounds every tombstone-and-retry loop in this package. Hitting
// it means a container kept disappearing under the caller, which is a bug
// rather than contention.
const MaxRetries = 1000

func structuralRace(op string) error {
	return domain.ErrStructuralRace.WithDetails(fmt.Sprintf("op=%s retries=%d", op, MaxRetries))
}
