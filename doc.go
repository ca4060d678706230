// Package soltracker and its sub-packages implement a Telegram bot that tracks Solana wallet addresses for its users.
/*
soltracker provides one service (package bot) and the libraries it is built on.

Architecture

Users register the addresses they want to follow by chatting with the bot. The bot stores users and addresses in
Postgres (package lib/store) and publishes a track command for every new address on the command channel of the
message broker. An external watcher service consumes the commands, monitors the network and publishes a transaction
event on the transaction channel whenever a tracked address is involved. The bot relays every event (package relay)
as a notification to the chats listed in it. The message broker is implemented as a product agnostic layer (package
lib/msg) with Redis pub/sub, AMQP and Kafka drivers, selected in the JSON config file at service startup.

The database schema is declared in code. At startup the migration manager (package lib/store/migration) waits for the
database, bootstraps the schema on an empty database, applies the pending scripts and generates a new script when the
declared models differ from the live tables.

Conversations (adding addresses, admin broadcasts) are kept in a state storage: Redis when configured, memory
otherwise. Relayed events can optionally be archived in MongoDB.

Bot

The bot service can be started running cmd/bot/main.go. It receives the Telegram updates on its webhook and also
serves liveness and readiness probes and Prometheus metrics. Admins get a console to broadcast messages to every user
and to check some statistics.

*/
package soltracker
