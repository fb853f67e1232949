package sqlinline

const QEnsureSchema = `--name ensure_schema
create table if not exists submissions (
  job_id         text not null,
  correlation_id text not null,
  seq            int  not null,
  prompt         text not null,
  status         text not null default 'pending',
  storage_key    text,
  created_at     timestamptz not null default now(),
  updated_at     timestamptz not null default now(),
  primary key (job_id, correlation_id)
);
`

const QInsertSubmission = `--name insert_submission
insert into submissions (job_id, correlation_id, seq, prompt, status, created_at, updated_at)
values ($1, $2, $3, $4, 'pending', now(), now())
on conflict (job_id, correlation_id) do nothing;
`

const QSelectSubmission = `--name select_submission
select job_id, correlation_id, seq, prompt, status
from submissions
where job_id = $1 and correlation_id = $2;
`

const QSelectJobSubmissions = `--name select_job_submissions
select job_id, correlation_id, seq, prompt, status
from submissions
where job_id = $1
order by seq;
`

const QResolveSubmission = `--name resolve_submission
update submissions
set status = $3, storage_key = $4, updated_at = now()
where job_id = $1 and correlation_id = $2;
`
