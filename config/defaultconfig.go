package config

// DefaultConfiguration is the configuration that will be in effect if no configuration is loaded from any of the expected locations
const DefaultConfiguration = `[rdbms]
dialect=sqlite3
connection-url=sentinel-pipeline.sqlite3?_foreign_keys=on
connxn-max-idle-time-seconds=0
connxn-max-lifetime-seconds=0
max-idle-connxns=30
max-open-connxns=100
[http]
listener=:8080
read-timeout=240
write-timeout=240
[log]
filename=
log-level=debug
max-file-size-in-mb=200
max-backups=3
max-age-in-days=28
compress-backups=true
[queues]
frame-queue-size=1000
frame-overflow-policy=dlq
batch-queue-size=500
batch-overflow-policy=reject
dequeue-timeout-in-seconds=1
[retry]
max-retries=5
base-delay-in-millis=200
max-delay-in-millis=30000
backoff-multiplier=2.0
[circuit-breaker]
failure-threshold=5
recovery-timeout-in-seconds=30
half-open-max-calls=2
success-threshold=2
[batching]
window-duration-in-seconds=60
idle-duration-in-seconds=30
sweep-interval-in-seconds=1
state-ttl-in-seconds=120
[state-store]
enabled=false
redis-url=redis://localhost:6379/0
[broadcast]
distribution-url=mem://risk-events
max-reconnect-attempts=3
supervise-interval-in-seconds=10
session-send-buffer-size=16
[pipeline]
detection-workers=4
analysis-workers=2
detector-base-url=http://localhost:9000
analysis-base-url=http://localhost:9100
connection-timeout-in-seconds=30
user-agent=Sentinel Pipeline
fast-path-confidence-threshold=0.95
dlq-gauge-update-interval-seconds=60
[retention]
enabled=false
period-in-days=30
sweep-interval-in-seconds=3600
batch-size=500
archive-export-path=/tmp/sentinel-pipeline-archive
archive-node-name=sentinel
max-archive-file-size-in-mb=100
`
