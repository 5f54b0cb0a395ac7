// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package cliparse handles command-line argument parsing and configuration.

# Configuration

ParseFlags returns a Config struct with all settings:

	cfg, err := cliparse.ParseFlags(os.Args[1:])

# CLI Flags and Environment Variables

	-role             NODE_ROLE               admin | voter (default admin)
	-p                PORT                    admin API port (default 3318)
	-t                DATABASE_TYPE           sqlite | postgres (default sqlite)
	-d                DATABASE_URL            default securevote-<role>.db (sqlite)
	-broker           BROKER_URL              default ws://127.0.0.1:9001
	-client-prefix    BROKER_CLIENT_PREFIX    default encuestas_
	-clean-session    BROKER_CLEAN_SESSION    default true
	-connect-timeout  BROKER_CONNECT_TIMEOUT  default 4s
	-load-timeout     LOAD_TIMEOUT            default 5s
	-dedup-window     SECURITY_DEDUP_WINDOW   default 5s
	-strict           STRICT_VOTES            default false
	-base-url         PUBLIC_BASE_URL         default http://localhost:3318
	-log-level        LOG_LEVEL               default info
	-log-format       LOG_FORMAT              default text
	-survey, -option                          voter role only

Environment lookups go through viper, so a .env file loaded by main and the
process environment behave the same. CLI flags take precedence over
environment variables.

# Broker URLs

  - tcp://, ssl://, mqtt://, mqtts://, ws://, wss:// connect to an MQTT broker
  - redis://, rediss:// use Redis pub/sub
  - memory:// is an in-process broker, useful for demos and tests

# Validation

ParseFlags returns an error for an unknown role, a voter without -survey,
an unsupported broker scheme or database type, a postgres database without
a URL, or non-positive timeouts.
*/
package cliparse
