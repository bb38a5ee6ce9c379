package tablemeta

import (
	"time"

	"github.com/benbjohnson/clock"
)

// Clock is re-exported so callers (and tests) don't need to import
// benbjohnson/clock directly. It is injectable per-Client so the
// 10-second waits in create/drop/set_config (§4.9-§4.11) can be advanced
// deterministically in tests instead of sleeping for real.
type Clock = clock.Clock

// configWaitTimeout is the 10-second bound §4.9-§4.11 wait on the
// directory mirror before giving up and returning "maybe".
const configWaitTimeout = 10 * time.Second
