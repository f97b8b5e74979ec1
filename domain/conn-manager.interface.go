package domain

type ConnManager interface {
	StreamAPI() ProviderStreamAPI
	SyncAPI() ProviderSyncAPI
}
