package lib

import "fmt"

var timerPool = &TimerPool{m: NewPoolMetrics()}
var bufferPool = &BufferPool{m: NewPoolMetrics()}

func StartPoolMetrics() {
	timerPool.m.start()
	bufferPool.m.start()
}

func ReleasePoolMetrics() {
	timerPool.m.release()
	bufferPool.m.release()
}

func JsonStringPoolMetrics() string {
	return fmt.Sprintf("{\"timerPool\" = %s, \"bufferPool\" = %s}",
		timerPool.m.metricsString(),
		bufferPool.m.metricsString(),
	)
}

// TimerPoolStats returns the reuse totals of the shared timer pool.
func TimerPoolStats() PoolStats { return timerPool.m.Snapshot() }

// BufferPoolStats returns the reuse totals of the shared overflow buffer pool.
func BufferPoolStats() PoolStats { return bufferPool.m.Snapshot() }
