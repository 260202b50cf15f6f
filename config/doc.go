// Package config loads node settings from YAML and turns them into the
// dispatcher, server limits, replay guard and key cache used by a
// listening node.
//
//	handshake:
//	  timeout: 10s
//	  mode: pattern-aware
//	  patterns: [ik, xx, nn]
//	key_cache:
//	  max_age: 720h
//	  persist_path: /var/lib/paytrust/keys
//	replay:
//	  window: 6m
//	limits:
//	  handshakes_per_minute: 10
//	  burst: 10
//	log:
//	  level: debug
//	  format: json
package config
